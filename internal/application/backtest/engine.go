package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/execsim/internal/application/analysis"
	"github.com/alejandrodnm/execsim/internal/application/execution"
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/alejandrodnm/execsim/internal/ports"
	"github.com/alejandrodnm/execsim/internal/risk"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const volumeWindow = 24 * time.Hour

// SizerFactory builds the position sizer for a run's max position size.
type SizerFactory func(maxPosition float64) ports.PositionSizer

// Options holds the engine collaborators that are not part of a run config.
type Options struct {
	// Execution carries fee and latency settings; the realistic/fees/discount
	// flags are taken from each BacktestConfig.
	Execution    execution.Config
	Random       execution.RandomSource
	NewSizer     SizerFactory
	RiskFreeRate float64
}

// Engine replays historical bars against a strategy, executing every entry
// and exit through a fresh Market Simulator per run.
type Engine struct {
	data     ports.HistoricalDataProvider
	strategy ports.Strategy
	opts     Options
}

// New creates a backtest engine.
func New(data ports.HistoricalDataProvider, strategy ports.Strategy, opts Options) *Engine {
	if opts.Execution.Fees == (execution.FeeConfig{}) {
		opts.Execution.Fees = execution.DefaultFeeConfig()
	}
	if opts.Execution.Latency == (execution.LatencyConfig{}) {
		opts.Execution.Latency = execution.DefaultLatencyConfig()
	}
	if opts.Random == nil {
		opts.Random = execution.NewRandomSource(uint64(time.Now().UnixNano()))
	}
	if opts.NewSizer == nil {
		opts.NewSizer = func(maxPosition float64) ports.PositionSizer {
			return risk.NewVolatilityAdjustedSizer(maxPosition)
		}
	}
	if opts.RiskFreeRate == 0 {
		opts.RiskFreeRate = analysis.DefaultRiskFreeRate
	}
	return &Engine{data: data, strategy: strategy, opts: opts}
}

// Run loads the configured symbols and replays them.
func (e *Engine) Run(ctx context.Context, cfg domain.BacktestConfig) (domain.BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return domain.BacktestResult{}, fmt.Errorf("backtest.Run: %w", err)
	}
	series, excluded, err := e.Load(ctx, cfg)
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("backtest.Run: %w", err)
	}
	result, err := e.Replay(ctx, cfg, series)
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("backtest.Run: %w", err)
	}
	result.Excluded = append(excluded, result.Excluded...)
	return result, nil
}

// Load fetches every symbol and drops the ones without data or below the
// quality threshold. Only an empty result is an error.
func (e *Engine) Load(ctx context.Context, cfg domain.BacktestConfig) (map[string]domain.Series, []string, error) {
	out := make(map[string]domain.Series, len(cfg.Symbols))
	var excluded []string

	for _, sym := range lo.Uniq(cfg.Symbols) {
		s, err := e.data.History(ctx, sym, cfg.Timeframe, cfg.Start, cfg.End)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, fmt.Errorf("load %s: %w", sym, ctx.Err())
			}
			slog.Warn("failed to load history, excluding symbol", "symbol", sym, "err", err)
			excluded = append(excluded, sym)
			continue
		}
		if s.Len() == 0 {
			slog.Warn("no bars in range, excluding symbol", "symbol", sym)
			excluded = append(excluded, sym)
			continue
		}
		if !s.Quality.Acceptable(cfg.MinQuality) {
			slog.Warn("data quality below threshold, excluding symbol",
				"symbol", sym,
				"score", fmt.Sprintf("%.2f", s.Quality.Score),
				"threshold", cfg.MinQuality,
				"gaps", s.Quality.Gaps,
				"price_anomalies", s.Quality.PriceAnomalies,
			)
			excluded = append(excluded, sym)
			continue
		}
		slog.Debug("history loaded", "symbol", sym, "bars", s.Len(), "quality", fmt.Sprintf("%.2f", s.Quality.Score))
		out[sym] = s
	}

	if len(out) == 0 {
		return nil, excluded, domain.ErrNoData
	}
	if len(out) < 2 {
		slog.Warn("fewer than 2 usable symbols, every tick will be skipped", "usable", len(out))
	}
	return out, excluded, nil
}

// run is the mutable state of one replay.
type run struct {
	cfg      domain.BacktestConfig
	series   map[string]domain.Series
	symbols  []string
	sim      *execution.Simulator
	sizer    ports.PositionSizer
	strategy ports.Strategy
	book     *ledger
	trades   []domain.Trade
	equity   []domain.EquityPoint
	skipped  int
}

// Replay runs the bar-by-bar simulation over pre-loaded series. Timestamps
// are processed in strictly ascending order and the strategy never sees a
// bar later than the current tick.
func (e *Engine) Replay(ctx context.Context, cfg domain.BacktestConfig, series map[string]domain.Series) (domain.BacktestResult, error) {
	started := time.Now()

	simCfg := e.opts.Execution
	simCfg.UseRealisticExecution = cfg.UseRealisticExecution
	simCfg.IncludeFees = cfg.IncludeFees
	simCfg.UseBNBDiscount = cfg.UseBNBDiscount

	strategy := e.strategy
	if tunable, ok := strategy.(ports.TunableStrategy); ok {
		strategy = tunable.WithParams(cfg.StrategyParams())
	}

	symbols := lo.Keys(series)
	sort.Strings(symbols)

	r := &run{
		cfg:      cfg,
		series:   series,
		symbols:  symbols,
		sim:      execution.NewSimulator(simCfg, e.opts.Random),
		sizer:    e.opts.NewSizer(cfg.MaxPositionSize),
		strategy: strategy,
		book:     newLedger(cfg.InitialCapital),
	}

	timestamps := unionTimestamps(series, cfg.Start, cfg.End)
	slog.Info("backtest starting",
		"strategy", strategy.Name(),
		"symbols", len(symbols),
		"ticks", len(timestamps),
		"capital", cfg.InitialCapital,
	)

	for _, t := range timestamps {
		if err := ctx.Err(); err != nil {
			return domain.BacktestResult{}, fmt.Errorf("replay: %w", err)
		}
		if err := r.tick(ctx, t); err != nil {
			return domain.BacktestResult{}, fmt.Errorf("replay at %s: %w", t.Format(time.RFC3339), err)
		}
	}

	if len(r.equity) > 0 {
		last := r.equity[len(r.equity)-1].Timestamp
		for _, sym := range r.book.openSymbols() {
			r.trades = append(r.trades, r.book.settleAtMark(r.book.positions[sym], last))
		}
	}

	analyzer := analysis.NewAnalyzer(cfg.Timeframe)
	analyzer.RiskFreeRate = e.opts.RiskFreeRate

	stats := r.sim.Stats()
	stats.TotalFees = r.book.feesPaid()

	result := domain.BacktestResult{
		RunID:          uuid.NewString(),
		Strategy:       strategy.Name(),
		Config:         cfg,
		Trades:         r.trades,
		EquityCurve:    r.equity,
		Metrics:        analyzer.Analyze(r.trades, r.equity),
		ExecutionStats: stats,
		SkippedTicks:   r.skipped,
		StartedAt:      started.UTC(),
		Duration:       time.Since(started),
	}

	slog.Info("backtest complete",
		"run_id", result.RunID,
		"trades", len(result.Trades),
		"final_equity", fmt.Sprintf("%.2f", result.FinalEquity()),
		"total_return", fmt.Sprintf("%.2f%%", result.Metrics.TotalReturn*100),
		"skipped_ticks", r.skipped,
	)
	return result, nil
}

// tick processes one timestamp: prices → strategy → entries → exits → equity.
func (r *run) tick(ctx context.Context, t time.Time) error {
	prices := make(map[string]float64, len(r.symbols))
	index := make(map[string]int, len(r.symbols))
	for _, sym := range r.symbols {
		if p, i, ok := r.series[sym].PriceAt(t, r.cfg.PriceTolerance); ok {
			prices[sym] = p
			index[sym] = i
		}
	}
	if len(prices) < 2 {
		r.skipped++
		slog.Debug("skipping tick, fewer than 2 priced symbols", "at", t, "priced", len(prices))
		return nil
	}
	r.book.mark(prices)

	history := make(map[string][]domain.PricePoint, len(prices))
	for sym, i := range index {
		if i+1 >= r.cfg.MinHistory {
			history[sym] = r.series[sym].PricePoints(i + 1)
		}
	}

	if len(history) >= 2 {
		opps, err := r.strategy.Detect(ctx, history)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", r.strategy.Name(), err)
		}
		for _, opp := range opps {
			if err := r.tryEnter(opp, t, prices, index); err != nil {
				return err
			}
		}
	} else {
		slog.Debug("insufficient history for strategy", "at", t, "ready", len(history), "min_history", r.cfg.MinHistory)
	}

	if err := r.checkExits(t, prices, index); err != nil {
		return err
	}

	r.equity = append(r.equity, domain.EquityPoint{Timestamp: t, Value: r.book.equity()})
	return nil
}

func (r *run) passesEntryFilters(opp domain.Opportunity, prices map[string]float64) bool {
	if r.book.inUse(opp.Pair1) || r.book.inUse(opp.Pair2) {
		return false
	}
	if opp.Confidence < r.cfg.MinConfidence || opp.ExpectedReturn < r.cfg.MinExpectedReturn {
		return false
	}
	_, ok1 := prices[opp.Pair1]
	_, ok2 := prices[opp.Pair2]
	return ok1 && ok2
}

func (r *run) tryEnter(opp domain.Opportunity, t time.Time, prices map[string]float64, index map[string]int) error {
	if !r.passesEntryFilters(opp, prices) {
		return nil
	}

	sym := opp.Pair1
	price := prices[sym]
	vol := r.volatility(sym, index[sym], opp.RiskLevel)
	equity := r.book.equity()

	var size domain.PositionSize
	if os, ok := r.sizer.(ports.OpportunitySizer); ok {
		size = os.SizeFor(opp, equity, price, vol)
	} else {
		size = r.sizer.Size(equity, price, vol)
	}
	if size.IsZero() {
		slog.Debug("entry rejected, zero position size", "symbol", sym, "at", t)
		return nil
	}

	order := domain.OrderRequest{
		Timestamp:   t,
		Symbol:      sym,
		Side:        opp.EntrySide(),
		Type:        domain.OrderMarket,
		Quantity:    size.Quantity,
		TimeInForce: domain.TIFGoodTillCancel,
	}
	res, err := r.sim.ExecuteOrder(order, price, r.volume24h(sym, index[sym], t), vol)
	if err != nil {
		return fmt.Errorf("entry %s: %w", sym, err)
	}
	if res.TotalFilledQty <= 0 {
		return nil
	}

	pos := r.book.open(res, opp, t)
	slog.Debug("position opened",
		"symbol", sym,
		"side", pos.Side,
		"qty", pos.Quantity,
		"price", fmt.Sprintf("%.4f", pos.EntryPrice),
		"status", res.Status,
		"slippage_bps", fmt.Sprintf("%.2f", res.SlippageBps),
	)
	return nil
}

// exitReason applies the exit policy: max holding, take-profit at the
// expected return, stop-loss at the risk level.
func (r *run) exitReason(pos *domain.Position, price float64, t time.Time) domain.ExitReason {
	if r.cfg.MaxHoldingHours > 0 && t.Sub(pos.EntryTime).Hours() >= r.cfg.MaxHoldingHours {
		return domain.ExitMaxHolding
	}
	pnl := pos.UnrealizedPct(price)
	if pos.ExpectedReturn > 0 && pnl >= pos.ExpectedReturn {
		return domain.ExitTakeProfit
	}
	if pos.RiskLevel > 0 && pnl <= -pos.RiskLevel {
		return domain.ExitStopLoss
	}
	return ""
}

func (r *run) checkExits(t time.Time, prices map[string]float64, index map[string]int) error {
	for _, sym := range r.book.openSymbols() {
		pos := r.book.positions[sym]
		price, ok := prices[sym]
		if !ok || !pos.EntryTime.Before(t) {
			continue
		}
		reason := r.exitReason(pos, price, t)
		if reason == "" {
			continue
		}

		vol := r.volatility(sym, index[sym], pos.RiskLevel)
		order := domain.OrderRequest{
			Timestamp:   t,
			Symbol:      sym,
			Side:        sideToClose(pos.Side),
			Type:        domain.OrderMarket,
			Quantity:    pos.Quantity,
			TimeInForce: domain.TIFGoodTillCancel,
		}
		res, err := r.sim.ExecuteOrder(order, price, r.volume24h(sym, index[sym], t), vol)
		if err != nil {
			return fmt.Errorf("exit %s: %w", sym, err)
		}
		if res.TotalFilledQty <= 0 {
			continue
		}

		trade := r.book.close(pos, res, t, reason)
		r.trades = append(r.trades, trade)
		slog.Debug("position closed",
			"symbol", sym,
			"reason", reason,
			"pnl", fmt.Sprintf("%.2f", trade.PnL),
			"hours", fmt.Sprintf("%.1f", trade.DurationHours),
		)
	}
	return nil
}

func sideToClose(side domain.PositionSide) domain.Side {
	if side == domain.Long {
		return domain.SideSell
	}
	return domain.SideBuy
}

// volatility is the realized volatility of the trailing window ending at idx,
// falling back to the given value when there is not enough history.
func (r *run) volatility(sym string, idx int, fallback float64) float64 {
	s := r.series[sym]
	window := max(r.cfg.VolatilityWindow, 2)
	vol := risk.RealizedVolatility(s.Closes(idx+1-window, idx+1))
	if vol <= 0 {
		return max(fallback, 0)
	}
	return vol
}

// volume24h sums close×volume of the bars in (t-24h, t], falling back to the
// configured default when the data has no volume.
func (r *run) volume24h(sym string, idx int, t time.Time) float64 {
	s := r.series[sym]
	cutoff := t.Add(-volumeWindow)
	var total float64
	for i := idx; i >= 0 && s.Bars[i].Timestamp.After(cutoff); i-- {
		total += s.Bars[i].QuoteVolume()
	}
	if total <= 0 {
		return r.cfg.DefaultVolume24h
	}
	return total
}

// unionTimestamps returns the sorted, de-duplicated bar timestamps in [start, end].
func unionTimestamps(series map[string]domain.Series, start, end time.Time) []time.Time {
	seen := make(map[int64]time.Time)
	for _, s := range series {
		for _, b := range s.Bars {
			if b.Timestamp.Before(start) || b.Timestamp.After(end) {
				continue
			}
			seen[b.Timestamp.UnixNano()] = b.Timestamp
		}
	}
	out := lo.Values(seen)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
