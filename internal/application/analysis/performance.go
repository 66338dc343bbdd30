package analysis

import (
	"math"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// DefaultRiskFreeRate es la tasa libre de riesgo anual.
const DefaultRiskFreeRate = 0.02

// Analyzer calcula métricas de rendimiento sobre una curva de equity.
type Analyzer struct {
	RiskFreeRate   float64
	PeriodsPerYear float64       // velas por año (365 días, cripto 24/7)
	BarDuration    time.Duration // para convertir duraciones de drawdown a días
}

// NewAnalyzer crea un Analyzer anualizado según el timeframe.
func NewAnalyzer(tf domain.Timeframe) Analyzer {
	bar := tf.Duration()
	if bar <= 0 {
		bar = 24 * time.Hour
	}
	return Analyzer{
		RiskFreeRate:   DefaultRiskFreeRate,
		PeriodsPerYear: tf.PeriodsPerYear(),
		BarDuration:    bar,
	}
}

// Analyze devuelve las métricas completas. Sin trades o con menos de dos
// puntos de equity devuelve domain.EmptyMetrics().
func (a Analyzer) Analyze(trades []domain.Trade, equity []domain.EquityPoint) domain.PerformanceMetrics {
	if len(trades) == 0 || len(equity) < 2 {
		return domain.EmptyMetrics()
	}

	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Value
	}
	returns := pctChange(values)

	var m domain.PerformanceMetrics
	m.TotalReturn = values[len(values)-1]/values[0] - 1
	m.AnnualizedReturn = a.annualize(m.TotalReturn, len(values))
	m.Volatility = SampleStd(returns) * math.Sqrt(a.PeriodsPerYear)
	m.SharpeRatio = a.sharpe(returns)
	m.SortinoRatio = a.sortino(returns)

	dd := analyzeDrawdowns(values)
	m.MaxDrawdown = dd.max
	m.AvgDrawdown = dd.avg
	m.MaxDrawdownDurationDays = float64(dd.maxDurationBars) * a.BarDuration.Hours() / 24
	if dd.max != 0 {
		m.RecoveryFactor = m.TotalReturn / math.Abs(dd.max)
		m.CalmarRatio = m.AnnualizedReturn / math.Abs(dd.max)
	} else if m.AnnualizedReturn > 0 {
		m.CalmarRatio = math.Inf(1)
	}

	m.VaR95 = Percentile(returns, 0.05)
	m.VaR99 = Percentile(returns, 0.01)
	m.ExpectedShortfall95 = expectedShortfall(returns, m.VaR95)
	m.ExpectedShortfall99 = expectedShortfall(returns, m.VaR99)

	tradeStats(trades, &m)
	m.TStatistic, m.PValue, m.CILow95, m.CIHigh95 = tTest(returns)

	return m
}

func pctChange(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

func (a Analyzer) annualize(total float64, periods int) float64 {
	if periods <= 1 || a.PeriodsPerYear <= 0 {
		return 0
	}
	years := float64(periods) / a.PeriodsPerYear
	if total <= -1 {
		return -1
	}
	return math.Pow(1+total, 1/years) - 1
}

func (a Analyzer) excess(returns []float64) []float64 {
	rf := a.RiskFreeRate / a.PeriodsPerYear
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - rf
	}
	return out
}

func (a Analyzer) sharpe(returns []float64) float64 {
	sd := SampleStd(returns)
	if len(returns) == 0 || sd == 0 {
		return 0
	}
	return Mean(a.excess(returns)) / sd * math.Sqrt(a.PeriodsPerYear)
}

func (a Analyzer) sortino(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	excessMean := Mean(a.excess(returns))
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	dev := SampleStd(downside) * math.Sqrt(a.PeriodsPerYear)
	if dev == 0 {
		if excessMean > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return excessMean * a.PeriodsPerYear / dev
}

type drawdowns struct {
	max             float64
	avg             float64
	maxDurationBars int
}

func analyzeDrawdowns(values []float64) drawdowns {
	var (
		out      drawdowns
		peak     = values[0]
		sumNeg   float64
		countNeg int
		run      int
	)
	for _, v := range values {
		peak = math.Max(peak, v)
		var dd float64
		if peak > 0 {
			dd = (v - peak) / peak
		}
		if dd < 0 {
			sumNeg += dd
			countNeg++
			run++
			out.maxDurationBars = max(out.maxDurationBars, run)
		} else {
			run = 0
		}
		out.max = math.Min(out.max, dd)
	}
	if countNeg > 0 {
		out.avg = sumNeg / float64(countNeg)
	}
	return out
}

func expectedShortfall(returns []float64, threshold float64) float64 {
	var tail []float64
	for _, r := range returns {
		if r <= threshold {
			tail = append(tail, r)
		}
	}
	return Mean(tail)
}

func tradeStats(trades []domain.Trade, m *domain.PerformanceMetrics) {
	m.TotalTrades = len(trades)
	var (
		wins, losses           int
		grossProfit, grossLoss float64
	)
	for _, t := range trades {
		if t.IsProfitable() {
			wins++
			grossProfit += t.PnL
		} else {
			losses++
			grossLoss += t.PnL
		}
	}
	m.WinRate = float64(wins) / float64(len(trades))
	if wins > 0 {
		m.AvgWin = grossProfit / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = grossLoss / float64(losses)
	}
	if grossLoss != 0 {
		m.ProfitFactor = grossProfit / math.Abs(grossLoss)
	} else {
		m.ProfitFactor = math.Inf(1)
	}
}

// tTest es el t-test de una muestra contra media cero, con p-valor bilateral
// e intervalo de confianza del 95%.
func tTest(returns []float64) (t, p, ciLow, ciHigh float64) {
	n := len(returns)
	if n < 2 {
		return 0, 1, 0, 0
	}
	m := Mean(returns)
	sd := SampleStd(returns)
	if sd == 0 {
		return 0, 1, m, m
	}
	df := float64(n - 1)
	sem := sd / math.Sqrt(float64(n))
	t = m / sem
	p = 2 * (1 - studentTCDF(math.Abs(t), df))
	crit := studentTQuantile(0.975, df)
	return t, p, m - crit*sem, m + crit*sem
}
