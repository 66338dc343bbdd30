package backtest_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alejandrodnm/execsim/internal/application/backtest"
	"github.com/alejandrodnm/execsim/internal/application/execution"
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// --- mocks ---

type memoryData map[string][]domain.Bar

func (m memoryData) History(_ context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.Series, error) {
	bars, ok := m[symbol]
	if !ok {
		return domain.Series{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return domain.NewSeries(symbol, tf, bars).Between(start, end), nil
}

type stubStrategy struct {
	opps  []domain.Opportunity
	err   error
	calls []time.Time // último timestamp visto por llamada
	sizes []int
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Detect(_ context.Context, history map[string][]domain.PricePoint) ([]domain.Opportunity, error) {
	var last time.Time
	for _, pts := range history {
		s.sizes = append(s.sizes, len(pts))
		if ts := pts[len(pts)-1].Timestamp; ts.After(last) {
			last = ts
		}
	}
	s.calls = append(s.calls, last)
	return s.opps, s.err
}

// --- helpers ---

func hourly(n int, price func(i int) float64) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := range n {
		p := price(i)
		out[i] = domain.Bar{Timestamp: t0.Add(time.Duration(i) * time.Hour), Open: p, High: p, Low: p, Close: p, Volume: 1000}
	}
	return out
}

func flat(p float64) func(int) float64 {
	return func(int) float64 { return p }
}

func stepAt(at int, before, after float64) func(int) float64 {
	return func(i int) float64 {
		if i >= at {
			return after
		}
		return before
	}
}

func testConfig(bars int, symbols ...string) domain.BacktestConfig {
	cfg := domain.DefaultBacktestConfig(t0, t0.Add(time.Duration(bars-1)*time.Hour), 10_000, symbols)
	cfg.UseRealisticExecution = false
	cfg.IncludeFees = false
	return cfg
}

func newEngine(data memoryData, strat *stubStrategy) *backtest.Engine {
	return backtest.New(data, strat, backtest.Options{Random: execution.NewRandomSource(7)})
}

func buyOpp() domain.Opportunity {
	return domain.Opportunity{
		Pair1:                 "AAA",
		Pair2:                 "BBB",
		Confidence:            0.9,
		ExpectedReturn:        0.02,
		RiskLevel:             0.05,
		CurrentCorrelation:    0.1,
		HistoricalCorrelation: 0.8,
	}
}

// --- tests ---

func TestRun_FlatMarketKeepsCapital(t *testing.T) {
	data := memoryData{"AAA": hourly(60, flat(100)), "BBB": hourly(60, flat(50))}
	res, err := newEngine(data, &stubStrategy{}).Run(context.Background(), testConfig(60, "AAA", "BBB"))
	require.NoError(t, err)

	require.Len(t, res.EquityCurve, 60)
	for i, p := range res.EquityCurve {
		assert.Equal(t, 10_000.0, p.Value)
		if i > 0 {
			assert.True(t, p.Timestamp.After(res.EquityCurve[i-1].Timestamp), "timestamps must strictly increase")
		}
	}
	assert.Empty(t, res.Trades)
	assert.Equal(t, domain.EmptyMetrics(), res.Metrics)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "stub", res.Strategy)
}

func TestRun_StrategyNeverSeesTheFuture(t *testing.T) {
	data := memoryData{"AAA": hourly(60, flat(100)), "BBB": hourly(60, flat(50))}
	strat := &stubStrategy{}
	_, err := newEngine(data, strat).Run(context.Background(), testConfig(60, "AAA", "BBB"))
	require.NoError(t, err)

	// MinHistory=50: la primera llamada ocurre en la vela 49
	require.Len(t, strat.calls, 11)
	for k, last := range strat.calls {
		assert.Equal(t, t0.Add(time.Duration(49+k)*time.Hour), last)
	}
	for _, n := range strat.sizes {
		assert.GreaterOrEqual(t, n, 50)
	}
}

func TestRun_TakeProfitThenEndOfData(t *testing.T) {
	data := memoryData{"AAA": hourly(60, stepAt(55, 100, 108)), "BBB": hourly(60, flat(50))}
	strat := &stubStrategy{opps: []domain.Opportunity{buyOpp()}}

	res, err := newEngine(data, strat).Run(context.Background(), testConfig(60, "AAA", "BBB"))
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	// Kelly 0.1625 topado a 0.02, ajustado por vol 0.02/0.05 → 0.8% de 10k a 100.
	// Aun sin ejecución realista se cruza el spread sintético (tier 4, 37.5 bps).
	first := res.Trades[0]
	assert.Equal(t, domain.ExitTakeProfit, first.ExitReason)
	assert.Equal(t, domain.Long, first.Side)
	assert.InDelta(t, 0.8, first.Quantity, 1e-9)
	assert.InDelta(t, 100.1875, first.EntryPrice, 1e-9)
	assert.True(t, first.ExitPrice > 107.5 && first.ExitPrice < 108, "exit sells at the bid")
	assert.InDelta(t, 0.8*(first.ExitPrice-first.EntryPrice), first.PnL, 1e-9)
	assert.InDelta(t, 6.0, first.DurationHours, 1e-9)

	last := res.Trades[1]
	assert.Equal(t, domain.ExitEndOfData, last.ExitReason)
	assert.Equal(t, t0.Add(59*time.Hour), last.ExitTime)
	assert.InDelta(t, 108, last.ExitPrice, 1e-9)

	assert.InDelta(t, 10_000+first.PnL+last.PnL, res.FinalEquity(), 1e-6)
	assert.Equal(t, 2, res.Metrics.TotalTrades)
	assert.Equal(t, 3, res.ExecutionStats.TotalOrders)
}

func TestRun_StopLoss(t *testing.T) {
	data := memoryData{"AAA": hourly(60, stepAt(55, 100, 93)), "BBB": hourly(60, flat(50))}
	strat := &stubStrategy{opps: []domain.Opportunity{buyOpp()}}

	res, err := newEngine(data, strat).Run(context.Background(), testConfig(60, "AAA", "BBB"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	sl := res.Trades[0]
	assert.Equal(t, domain.ExitStopLoss, sl.ExitReason)
	assert.True(t, sl.PnL < -5.6 && sl.PnL > -6.0, "pnl %v", sl.PnL)
}

func TestRun_MaxHolding(t *testing.T) {
	data := memoryData{"AAA": hourly(60, flat(100)), "BBB": hourly(60, flat(50))}
	strat := &stubStrategy{opps: []domain.Opportunity{buyOpp()}}
	cfg := testConfig(60, "AAA", "BBB")
	cfg.MaxHoldingHours = 3

	res, err := newEngine(data, strat).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	assert.Equal(t, domain.ExitMaxHolding, res.Trades[0].ExitReason)
	assert.Equal(t, t0.Add(49*time.Hour), res.Trades[0].EntryTime)
	assert.Equal(t, t0.Add(52*time.Hour), res.Trades[0].ExitTime)
}

func TestRun_ShortOnRisingCorrelation(t *testing.T) {
	data := memoryData{"AAA": hourly(60, stepAt(55, 100, 95)), "BBB": hourly(60, flat(50))}
	opp := buyOpp()
	opp.CurrentCorrelation, opp.HistoricalCorrelation = 0.9, 0.2
	strat := &stubStrategy{opps: []domain.Opportunity{opp}}

	res, err := newEngine(data, strat).Run(context.Background(), testConfig(60, "AAA", "BBB"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	short := res.Trades[0]
	assert.Equal(t, domain.Short, short.Side)
	assert.Equal(t, domain.ExitTakeProfit, short.ExitReason)
	assert.InDelta(t, 99.8125, short.EntryPrice, 1e-9)
	assert.InDelta(t, 0.8*(short.EntryPrice-short.ExitPrice), short.PnL, 1e-9)
	assert.Greater(t, short.PnL, 3.0)
}

func TestRun_EntryFilters(t *testing.T) {
	data := memoryData{"AAA": hourly(60, stepAt(55, 100, 108)), "BBB": hourly(60, flat(50))}

	lowConfidence := buyOpp()
	lowConfidence.Confidence = 0.5
	lowReturn := buyOpp()
	lowReturn.ExpectedReturn = 0.01
	unpriced := buyOpp()
	unpriced.Pair2 = "ZZZ"

	for name, opp := range map[string]domain.Opportunity{
		"low confidence": lowConfidence,
		"low return":     lowReturn,
		"unpriced pair":  unpriced,
	} {
		t.Run(name, func(t *testing.T) {
			strat := &stubStrategy{opps: []domain.Opportunity{opp}}
			res, err := newEngine(data, strat).Run(context.Background(), testConfig(60, "AAA", "BBB"))
			require.NoError(t, err)
			assert.Empty(t, res.Trades)
			assert.Equal(t, 10_000.0, res.FinalEquity())
			assert.Zero(t, res.ExecutionStats.TotalOrders)
		})
	}
}

func TestRun_FeesReduceEquity(t *testing.T) {
	data := memoryData{"AAA": hourly(60, flat(100)), "BBB": hourly(60, flat(50))}
	strat := &stubStrategy{opps: []domain.Opportunity{buyOpp()}}
	cfg := testConfig(60, "AAA", "BBB")
	cfg.IncludeFees = true
	cfg.MaxHoldingHours = 3

	res, err := newEngine(data, strat).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	assert.Greater(t, res.Trades[0].Fees, 0.0)
	assert.Less(t, res.Trades[0].PnL, 0.0)
	assert.Less(t, res.FinalEquity(), 10_000.0)
}

func TestRun_QualityExclusion(t *testing.T) {
	sparse := make([]domain.Bar, 0, 13)
	for i := 0; i < 60; i += 5 {
		sparse = append(sparse, domain.Bar{Timestamp: t0.Add(time.Duration(i) * time.Hour), Open: 10, High: 10, Low: 10, Close: 10, Volume: 1})
	}
	data := memoryData{"AAA": hourly(60, flat(100)), "BBB": hourly(60, flat(50)), "CCC": sparse}

	res, err := newEngine(data, &stubStrategy{}).Run(context.Background(), testConfig(60, "AAA", "BBB", "CCC", "MISSING"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CCC", "MISSING"}, res.Excluded)
	assert.Len(t, res.EquityCurve, 60)
}

func TestRun_NoData(t *testing.T) {
	data := memoryData{"AAA": nil, "BBB": nil}
	_, err := newEngine(data, &stubStrategy{}).Run(context.Background(), testConfig(60, "AAA", "BBB"))
	require.ErrorIs(t, err, domain.ErrNoData)
}

func TestRun_SingleUsableSymbolSkipsEveryTick(t *testing.T) {
	data := memoryData{"AAA": hourly(60, flat(100)), "BBB": nil}
	res, err := newEngine(data, &stubStrategy{}).Run(context.Background(), testConfig(60, "AAA", "BBB"))
	require.NoError(t, err)
	assert.Equal(t, 60, res.SkippedTicks)
	assert.Empty(t, res.EquityCurve)
	assert.Equal(t, 10_000.0, res.FinalEquity())
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig(60, "AAA")
	_, err := newEngine(memoryData{}, &stubStrategy{}).Run(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestRun_StrategyErrorAbortsRun(t *testing.T) {
	boom := errors.New("boom")
	data := memoryData{"AAA": hourly(60, flat(100)), "BBB": hourly(60, flat(50))}
	_, err := newEngine(data, &stubStrategy{err: boom}).Run(context.Background(), testConfig(60, "AAA", "BBB"))
	require.ErrorIs(t, err, boom)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := memoryData{"AAA": hourly(60, flat(100)), "BBB": hourly(60, flat(50))}
	_, err := newEngine(data, &stubStrategy{}).Run(ctx, testConfig(60, "AAA", "BBB"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_PriceToleranceSkipsStaleTicks(t *testing.T) {
	// BBB deja de cotizar en la vela 30: con tolerancia de 2h, a partir de la 33 solo hay un precio
	data := memoryData{"AAA": hourly(60, flat(100)), "BBB": hourly(31, flat(50))}
	res, err := newEngine(data, &stubStrategy{}).Run(context.Background(), testConfig(60, "AAA", "BBB"))
	require.NoError(t, err)
	assert.Equal(t, 27, res.SkippedTicks)
	assert.Len(t, res.EquityCurve, 33)
}

func TestRun_PairLegBlocksChainedOpportunity(t *testing.T) {
	data := memoryData{
		"AAA": hourly(60, flat(100)),
		"BBB": hourly(60, flat(50)),
		"CCC": hourly(60, flat(20)),
	}
	chained := buyOpp()
	chained.Pair1, chained.Pair2 = "BBB", "CCC"
	strat := &stubStrategy{opps: []domain.Opportunity{buyOpp(), chained}}

	res, err := newEngine(data, strat).Run(context.Background(), testConfig(60, "AAA", "BBB", "CCC"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	// BBB es la segunda pierna de la posición en AAA: nunca se abre por separado
	for _, tr := range res.Trades {
		assert.Equal(t, "AAA", tr.Symbol)
	}
	assert.Equal(t, 1, res.ExecutionStats.TotalOrders)
}

// zeroRandom hace que toda orden grande llene parcialmente al 70%.
type zeroRandom struct{}

func (zeroRandom) Float64() float64    { return 0 }
func (zeroRandom) ExpFloat64() float64 { return 0 }

func TestRun_PartialFillsCarryRemainder(t *testing.T) {
	data := memoryData{"AAA": hourly(60, flat(100)), "BBB": hourly(60, flat(50))}
	strat := &stubStrategy{opps: []domain.Opportunity{buyOpp()}}
	cfg := testConfig(60, "AAA", "BBB")
	cfg.InitialCapital = 50_000_000
	cfg.UseRealisticExecution = true
	cfg.IncludeFees = true
	cfg.MaxHoldingHours = 3

	engine := backtest.New(data, strat, backtest.Options{Random: zeroRandom{}})
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Trades), 2)
	assert.Positive(t, res.ExecutionStats.PartialFills)

	var pnl, fees float64
	ids := make(map[string]bool)
	byEntry := make(map[time.Time][]domain.Trade)
	for _, tr := range res.Trades {
		pnl += tr.PnL
		fees += tr.Fees
		assert.False(t, ids[tr.ID], "duplicate trade id %s", tr.ID)
		ids[tr.ID] = true
		byEntry[tr.EntryTime] = append(byEntry[tr.EntryTime], tr)
	}

	// el ledger cuadra: PnL realizado = variación de equity, fees = las del ledger
	assert.InDelta(t, res.FinalEquity()-cfg.InitialCapital, pnl, 1e-2)
	assert.InDelta(t, res.ExecutionStats.TotalFees, fees, 1e-6)

	split := 0
	for _, group := range byEntry {
		if len(group) < 2 {
			continue
		}
		split++
		var total float64
		for _, tr := range group {
			total += tr.Quantity
		}
		// primer cierre al 70% de la posición, el resto sigue abierto y se cierra después
		assert.InDelta(t, 0.7, group[0].Quantity/total, 1e-9)
		assert.True(t, group[1].ExitTime.After(group[0].ExitTime))
		assert.Less(t, group[1].Fees, group[0].Fees)
	}
	assert.Positive(t, split, "a partial close must leave a remainder that closes later")
}
