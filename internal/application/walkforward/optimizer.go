package walkforward

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/alejandrodnm/execsim/internal/application/analysis"
	"github.com/alejandrodnm/execsim/internal/application/execution"
	"github.com/alejandrodnm/execsim/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	minPeriods          = 3
	defaultMinTrainBars = 100
	defaultMinTestBars  = 30
	maxStability        = 10
	degradationScale    = 0.5
	DefaultAlpha        = 0.05
)

// Replayer ejecuta un backtest sobre series ya cargadas.
// *backtest.Engine lo implementa.
type Replayer interface {
	Replay(ctx context.Context, cfg domain.BacktestConfig, series map[string]domain.Series) (domain.BacktestResult, error)
}

// EngineFactory crea un Replayer independiente con su propia fuente aleatoria.
type EngineFactory func(seed uint64) Replayer

// Optimizer hace la validación walk-forward: optimiza el grid en cada
// ventana de train y mide los mejores parámetros en la ventana de test.
type Optimizer struct {
	Splitter     Splitter
	Grid         Grid
	Workers      int
	Seed         uint64
	MinTrainBars int
	MinTestBars  int
	NewEngine    EngineFactory

	// Block bootstrap de la corrida final y nivel de las correcciones
	// de significancia por periodo.
	Simulations int
	BlockSize   int
	Alpha       float64
}

// NewOptimizer crea un Optimizer con splitter y grid por defecto.
func NewOptimizer(factory EngineFactory, seed uint64) *Optimizer {
	return &Optimizer{
		Splitter:     DefaultSplitter(),
		Grid:         DefaultGrid(),
		Workers:      runtime.NumCPU(),
		Seed:         seed,
		MinTrainBars: defaultMinTrainBars,
		MinTestBars:  defaultMinTestBars,
		NewEngine:    factory,
		Simulations:  analysis.DefaultSimulations,
		BlockSize:    analysis.DefaultBlockSize,
		Alpha:        DefaultAlpha,
	}
}

// Run valida la estrategia sobre [base.Start, base.End] y termina con una
// corrida completa usando los mejores parámetros fuera de muestra.
// Devuelve domain.ErrInsufficientPeriods si quedan menos de 3 periodos utilizables.
func (o *Optimizer) Run(ctx context.Context, base domain.BacktestConfig, series map[string]domain.Series) (domain.WalkForwardReport, error) {
	windows := o.Splitter.Split(base.Start, base.End)
	if len(windows) < minPeriods {
		return domain.WalkForwardReport{}, fmt.Errorf("walkforward.Run: %w: %d windows in range, need %d",
			domain.ErrInsufficientPeriods, len(windows), minPeriods)
	}
	grid := o.Grid.Params(base)
	slog.Info("walk-forward starting",
		"windows", len(windows),
		"param_sets", len(grid),
		"workers", o.workers(),
	)

	var periods []domain.Period
	for _, w := range windows {
		train := sliceSeries(series, w.TrainStart, w.TrainEnd)
		test := sliceSeries(series, w.TestStart, w.TestEnd)
		if n := maxBars(train); n < o.minTrainBars() {
			slog.Warn("insufficient train data, skipping window", "window", w.Index, "bars", n)
			continue
		}
		if n := maxBars(test); n < o.minTestBars() {
			slog.Warn("insufficient test data, skipping window", "window", w.Index, "bars", n)
			continue
		}

		p, err := o.runWindow(ctx, base, w, grid, train, test)
		if err != nil {
			return domain.WalkForwardReport{}, fmt.Errorf("walkforward.Run: window %d: %w", w.Index, err)
		}
		slog.Info("window complete",
			"window", w.Index,
			"params", p.Params.String(),
			"train_sharpe", fmt.Sprintf("%.2f", p.Train.SharpeRatio),
			"test_sharpe", fmt.Sprintf("%.2f", p.Test.SharpeRatio),
			"test_return", fmt.Sprintf("%.2f%%", p.Test.TotalReturn*100),
		)
		periods = append(periods, p)
	}

	if len(periods) < minPeriods {
		return domain.WalkForwardReport{}, fmt.Errorf("walkforward.Run: %w: %d usable periods, need %d",
			domain.ErrInsufficientPeriods, len(periods), minPeriods)
	}

	markSignificance(periods, o.alpha())
	report := domain.WalkForwardReport{
		Alpha:            o.alpha(),
		Periods:          periods,
		Overall:          overall(periods),
		Stability:        stability(periods),
		OverfittingScore: overfitting(periods),
		BestParams:       bestParams(periods),
	}

	final, err := o.NewEngine(o.Seed).Replay(ctx, report.BestParams.Apply(base), series)
	if err != nil {
		return domain.WalkForwardReport{}, fmt.Errorf("walkforward.Run: final run: %w", err)
	}
	report.Final = final

	bs := analysis.NewBootstrap(base.Timeframe)
	bs.Simulations, bs.BlockSize = o.Simulations, o.BlockSize
	// la semilla sigue a las reservadas por las ventanas
	rng := execution.NewRandomSource(o.Seed + uint64(len(windows)*(len(grid)+1)))
	if stats, ok := bs.Run(analysis.EquityReturns(final.EquityCurve), rng); ok {
		report.Bootstrap = stats
	} else {
		slog.Info("not enough returns for bootstrap",
			"points", len(final.EquityCurve),
			"block_size", bs.BlockSize,
		)
	}

	slog.Info("walk-forward complete",
		"periods", len(periods),
		"best_params", report.BestParams.String(),
		"overfitting", fmt.Sprintf("%.2f", report.OverfittingScore),
		"consistency", fmt.Sprintf("%.2f", report.Stability.ConsistencyRatio),
		"robust", report.IsRobust(),
		"bootstrap_sharpe_ci", fmt.Sprintf("[%.2f, %.2f]", report.Bootstrap.SharpeCILow, report.Bootstrap.SharpeCIHigh),
	)
	return report, nil
}

// runWindow prueba todo el grid en train en paralelo y mide el mejor en test.
func (o *Optimizer) runWindow(ctx context.Context, base domain.BacktestConfig, w domain.Window, grid []domain.ParamSet,
	train, test map[string]domain.Series) (domain.Period, error) {
	trainCfg := base
	trainCfg.Start, trainCfg.End = w.TrainStart, w.TrainEnd

	// cada ventana reserva len(grid)+1 semillas: una por set de train y la de test
	seedBase := o.Seed + uint64(w.Index*(len(grid)+1))

	results := make([]domain.PerformanceMetrics, len(grid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers())
	for i, params := range grid {
		seed := seedBase + uint64(i)
		g.Go(func() error {
			res, err := o.NewEngine(seed).Replay(gctx, params.Apply(trainCfg), train)
			if err != nil {
				return fmt.Errorf("train %s: %w", params.String(), err)
			}
			results[i] = res.Metrics
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Period{}, err
	}

	best := 0
	for i := range results {
		if results[i].SharpeRatio > results[best].SharpeRatio {
			best = i
		}
	}

	testCfg := grid[best].Apply(base)
	testCfg.Start, testCfg.End = w.TestStart, w.TestEnd
	res, err := o.NewEngine(seedBase+uint64(len(grid))).Replay(ctx, testCfg, test)
	if err != nil {
		return domain.Period{}, fmt.Errorf("test %s: %w", grid[best].String(), err)
	}

	return domain.Period{
		Window: w,
		Params: grid[best],
		Train:  results[best],
		Test:   res.Metrics,
	}, nil
}

func (o *Optimizer) workers() int {
	if o.Workers <= 0 {
		return 1
	}
	return o.Workers
}

func (o *Optimizer) alpha() float64 {
	if o.Alpha <= 0 || o.Alpha >= 1 {
		return DefaultAlpha
	}
	return o.Alpha
}

func (o *Optimizer) minTrainBars() int {
	if o.MinTrainBars <= 0 {
		return defaultMinTrainBars
	}
	return o.MinTrainBars
}

func (o *Optimizer) minTestBars() int {
	if o.MinTestBars <= 0 {
		return defaultMinTestBars
	}
	return o.MinTestBars
}

func sliceSeries(series map[string]domain.Series, from, to time.Time) map[string]domain.Series {
	out := make(map[string]domain.Series, len(series))
	for sym, s := range series {
		out[sym] = s.Between(from, to)
	}
	return out
}

func maxBars(series map[string]domain.Series) int {
	n := 0
	for _, s := range series {
		n = max(n, s.Len())
	}
	return n
}

func testReturns(periods []domain.Period) (returns, sharpes, drawdowns []float64) {
	for _, p := range periods {
		returns = append(returns, p.Test.AnnualizedReturn)
		sharpes = append(sharpes, p.Test.SharpeRatio)
		drawdowns = append(drawdowns, p.Test.MaxDrawdown)
	}
	return returns, sharpes, drawdowns
}

func overall(periods []domain.Period) domain.OverallMetrics {
	returns, sharpes, drawdowns := testReturns(periods)
	worst := 0.0
	for _, dd := range drawdowns {
		worst = math.Min(worst, dd)
	}
	return domain.OverallMetrics{
		AvgReturn:       analysis.Mean(returns),
		MedianReturn:    analysis.Median(returns),
		StdReturn:       analysis.PopulationStd(returns),
		AvgSharpe:       analysis.Mean(sharpes),
		MedianSharpe:    analysis.Median(sharpes),
		AvgDrawdown:     analysis.Mean(drawdowns),
		WorstDrawdown:   worst,
		PositivePeriods: positiveShare(returns),
	}
}

func positiveShare(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	n := 0
	for _, x := range xs {
		if x > 0 {
			n++
		}
	}
	return float64(n) / float64(len(xs))
}

// inverseCV es |media|/std acotado a 10; cero si la media es cero.
func inverseCV(xs []float64) float64 {
	m := analysis.Mean(xs)
	if m == 0 {
		return 0
	}
	sd := analysis.PopulationStd(xs)
	if sd == 0 {
		return maxStability
	}
	return math.Min(math.Abs(m)/sd, maxStability)
}

func stability(periods []domain.Period) domain.Stability {
	if len(periods) < 2 {
		return domain.Stability{}
	}
	returns, sharpes, _ := testReturns(periods)
	return domain.Stability{
		ConsistencyRatio: positiveShare(returns),
		ReturnStability:  inverseCV(returns),
		SharpeStability:  inverseCV(sharpes),
		ReturnVolatility: analysis.PopulationStd(returns),
		SharpeVolatility: analysis.PopulationStd(sharpes),
	}
}

// overfitting es la degradación media train→test del Sharpe, normalizada
// para que una caída del 50% puntúe 1. Sin periodos con Sharpe de train
// positivo se considera sobreajuste total.
func overfitting(periods []domain.Period) float64 {
	var degradations []float64
	for _, p := range periods {
		train := p.Train.SharpeRatio
		if train <= 0 || math.IsInf(train, 0) {
			continue
		}
		degradations = append(degradations, math.Max(0, (train-p.Test.SharpeRatio)/train))
	}
	if len(degradations) == 0 {
		return 1
	}
	return math.Min(1, analysis.Mean(degradations)/degradationScale)
}

// markSignificance corrige los p-valores de test de todos los periodos por
// Bonferroni y por Benjamini-Hochberg.
func markSignificance(periods []domain.Period, alpha float64) {
	pvalues := make([]float64, len(periods))
	for i, p := range periods {
		pvalues[i] = p.Test.PValue
	}
	bonferroni := analysis.Bonferroni(pvalues, alpha)
	fdr := analysis.BenjaminiHochberg(pvalues, alpha)
	for i := range periods {
		periods[i].SignificantBonferroni = bonferroni[i]
		periods[i].SignificantFDR = fdr[i]
	}
}

// bestParams son los parámetros del periodo con mejor Sharpe de test.
func bestParams(periods []domain.Period) domain.ParamSet {
	best := periods[0]
	for _, p := range periods[1:] {
		if p.Test.SharpeRatio > best.Test.SharpeRatio {
			best = p
		}
	}
	return best.Params
}
