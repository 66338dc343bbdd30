package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func curve(values ...float64) []domain.EquityPoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		out[i] = domain.EquityPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return out
}

func TestAnalyze_EmptyInputs(t *testing.T) {
	a := NewAnalyzer(domain.Timeframe1h)

	m := a.Analyze(nil, curve(100, 110))
	assert.Equal(t, domain.EmptyMetrics(), m)
	assert.Equal(t, 1.0, m.PValue)

	m = a.Analyze([]domain.Trade{{PnL: 1}}, curve(100))
	assert.Equal(t, domain.EmptyMetrics(), m)
}

func TestAnalyze_ReturnsAndDrawdown(t *testing.T) {
	a := NewAnalyzer(domain.Timeframe1h)
	m := a.Analyze([]domain.Trade{{PnL: 20}}, curve(100, 110, 99, 120))

	assert.InDelta(t, 0.2, m.TotalReturn, 1e-12)
	assert.InDelta(t, -0.1, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, -0.1, m.AvgDrawdown, 1e-12)
	assert.InDelta(t, 1.0/24, m.MaxDrawdownDurationDays, 1e-12)
	assert.InDelta(t, 2.0, m.RecoveryFactor, 1e-12)
	assert.Greater(t, m.AnnualizedReturn, m.TotalReturn, "4 hourly bars annualize far above 20%")
	assert.Greater(t, m.Volatility, 0.0)
}

func TestAnalyze_SortinoAndCalmarInfiniteWithoutLosses(t *testing.T) {
	a := NewAnalyzer(domain.Timeframe1d)
	m := a.Analyze([]domain.Trade{{PnL: 5}}, curve(100, 101, 102, 104))

	assert.True(t, math.IsInf(m.SortinoRatio, 1))
	assert.True(t, math.IsInf(m.CalmarRatio, 1))
	assert.Zero(t, m.MaxDrawdown)
	assert.True(t, math.IsInf(m.ProfitFactor, 1))
}

func TestTradeStats(t *testing.T) {
	var m domain.PerformanceMetrics
	tradeStats([]domain.Trade{{PnL: 10}, {PnL: -5}, {PnL: 20}, {PnL: 0}}, &m)

	assert.Equal(t, 4, m.TotalTrades)
	assert.InDelta(t, 0.5, m.WinRate, 1e-12)
	assert.InDelta(t, 15, m.AvgWin, 1e-12)
	assert.InDelta(t, -2.5, m.AvgLoss, 1e-12)
	assert.InDelta(t, 6, m.ProfitFactor, 1e-12)
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	xs := []float64{0.03, -0.05, 0, 0.02, -0.01}
	assert.InDelta(t, -0.042, Percentile(xs, 0.05), 1e-12)
	assert.InDelta(t, 0.0, Median(xs), 1e-12)
	assert.InDelta(t, -0.05, Percentile(xs, 0), 1e-12)
	assert.InDelta(t, 0.03, Percentile(xs, 1), 1e-12)
	assert.InDelta(t, 0.025, Percentile([]float64{0.02, 0.03}, 0.5), 1e-12)
	assert.Zero(t, Percentile(nil, 0.5))
}

func TestExpectedShortfall(t *testing.T) {
	xs := []float64{-0.05, -0.03, 0.01, 0.02}
	assert.InDelta(t, -0.04, expectedShortfall(xs, -0.03), 1e-12)
}

func TestStudentT(t *testing.T) {
	// df=1 es la Cauchy: F(1) = 0.75
	assert.InDelta(t, 0.75, studentTCDF(1, 1), 1e-9)
	assert.InDelta(t, 0.5, studentTCDF(0, 7), 1e-12)
	assert.InDelta(t, 0.975, studentTCDF(1.959964, 1e4), 1e-4)
	assert.InDelta(t, 2.228139, studentTQuantile(0.975, 10), 1e-5)
	assert.InDelta(t, 1-studentTCDF(2, 5), studentTCDF(-2, 5), 1e-12)
}

func TestTTest(t *testing.T) {
	tStat, p, lo, hi := tTest([]float64{0.01, 0.02, 0.015, 0.012, 0.018})
	require.Greater(t, tStat, 0.0)
	assert.Less(t, p, 0.01)
	assert.Less(t, lo, hi)
	assert.Greater(t, lo, 0.0)

	tStat, p, _, _ = tTest([]float64{0.01})
	assert.Zero(t, tStat)
	assert.Equal(t, 1.0, p)

	_, p, lo, hi = tTest([]float64{0.5, 0.5, 0.5})
	assert.Equal(t, 1.0, p)
	assert.Equal(t, 0.5, lo)
	assert.Equal(t, 0.5, hi)
}

func TestMetrics_Significance(t *testing.T) {
	m := domain.PerformanceMetrics{PValue: 0.01}
	assert.True(t, m.IsStatisticallySignificant(0.05))
	assert.False(t, domain.EmptyMetrics().IsStatisticallySignificant(0.05))
}
