package domain

import (
	"fmt"
	"math"
	"time"
)

// BacktestConfig es la especificación inmutable de una corrida.
type BacktestConfig struct {
	Start          time.Time `yaml:"start"`
	End            time.Time `yaml:"end"`
	InitialCapital float64   `yaml:"initial_capital"`
	Symbols        []string  `yaml:"symbols"`
	Timeframe      Timeframe `yaml:"timeframe"`

	// Parámetros de estrategia (optimizables en walk-forward)
	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	MinConfidence        float64 `yaml:"min_confidence"`
	MinExpectedReturn    float64 `yaml:"min_expected_return"`
	MaxPositionSize      float64 `yaml:"max_position_size"` // fracción de la cartera

	// Ejecución
	UseRealisticExecution bool `yaml:"use_realistic_execution"`
	IncludeFees           bool `yaml:"include_fees"`
	UseBNBDiscount        bool `yaml:"use_bnb_discount"`

	// Replay
	MaxHoldingHours  float64       `yaml:"max_holding_hours"`
	PriceTolerance   time.Duration `yaml:"price_tolerance"`
	MinHistory       int           `yaml:"min_history"`       // velas mínimas para llamar a la estrategia
	MinQuality       float64       `yaml:"min_quality"`       // score mínimo de calidad por símbolo
	VolatilityWindow int           `yaml:"volatility_window"` // velas para la volatilidad realizada
	DefaultVolume24h float64       `yaml:"default_volume_24h"`
}

// DefaultBacktestConfig devuelve la configuración por defecto para el rango dado.
func DefaultBacktestConfig(start, end time.Time, capital float64, symbols []string) BacktestConfig {
	return BacktestConfig{
		Start:                 start,
		End:                   end,
		InitialCapital:        capital,
		Symbols:               symbols,
		Timeframe:             Timeframe1h,
		CorrelationThreshold:  0.35,
		MinConfidence:         0.75,
		MinExpectedReturn:     0.02,
		MaxPositionSize:       0.02,
		UseRealisticExecution: true,
		IncludeFees:           true,
		UseBNBDiscount:        true,
		MaxHoldingHours:       24,
		PriceTolerance:        2 * time.Hour,
		MinHistory:            50,
		MinQuality:            MinAcceptableQuality,
		VolatilityWindow:      24,
		DefaultVolume24h:      1_000_000,
	}
}

// Validate devuelve ErrInvalidConfig (envuelto con el motivo) si la configuración no es usable.
func (c BacktestConfig) Validate() error {
	switch {
	case c.Start.IsZero() || c.End.IsZero():
		return fmt.Errorf("%w: start and end are required", ErrInvalidConfig)
	case !c.End.After(c.Start):
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidConfig, c.End.Format(time.RFC3339), c.Start.Format(time.RFC3339))
	case !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 0):
		return fmt.Errorf("%w: initial capital must be positive", ErrInvalidConfig)
	case len(c.Symbols) < 2:
		return fmt.Errorf("%w: at least 2 symbols are required, got %d", ErrInvalidConfig, len(c.Symbols))
	case c.MaxPositionSize <= 0 || c.MaxPositionSize > 1:
		return fmt.Errorf("%w: max position size %.4f out of (0, 1]", ErrInvalidConfig, c.MaxPositionSize)
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fmt.Errorf("%w: min confidence %.4f out of [0, 1]", ErrInvalidConfig, c.MinConfidence)
	case c.PriceTolerance < 0:
		return fmt.Errorf("%w: negative price tolerance", ErrInvalidConfig)
	}
	if _, err := ParseTimeframe(string(c.Timeframe)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// EquityPoint es un punto de la curva de equity.
type EquityPoint struct {
	Timestamp time.Time
	Value     float64
}

// BacktestResult agrega todo lo producido por una corrida. Solo lectura.
type BacktestResult struct {
	RunID          string
	Strategy       string
	Config         BacktestConfig
	Trades         []Trade
	EquityCurve    []EquityPoint
	Metrics        PerformanceMetrics
	ExecutionStats ExecutionStats
	Excluded       []string // símbolos descartados por calidad o sin datos
	SkippedTicks   int
	StartedAt      time.Time
	Duration       time.Duration
}

// FinalEquity devuelve el último valor de la curva, o el capital inicial si está vacía.
func (r BacktestResult) FinalEquity() float64 {
	if len(r.EquityCurve) == 0 {
		return r.Config.InitialCapital
	}
	return r.EquityCurve[len(r.EquityCurve)-1].Value
}

// RunSummary es la fila resumida de una corrida persistida.
type RunSummary struct {
	RunID          string
	Strategy       string
	CreatedAt      time.Time
	Start          time.Time
	End            time.Time
	Symbols        []string
	InitialCapital float64
	FinalEquity    float64
	TotalReturn    float64
	SharpeRatio    float64
	MaxDrawdown    float64
	TotalTrades    int
}

// Summary resume el resultado para persistencia y listados.
func (r BacktestResult) Summary() RunSummary {
	return RunSummary{
		RunID:          r.RunID,
		Strategy:       r.Strategy,
		CreatedAt:      r.StartedAt,
		Start:          r.Config.Start,
		End:            r.Config.End,
		Symbols:        r.Config.Symbols,
		InitialCapital: r.Config.InitialCapital,
		FinalEquity:    r.FinalEquity(),
		TotalReturn:    r.Metrics.TotalReturn,
		SharpeRatio:    r.Metrics.SharpeRatio,
		MaxDrawdown:    r.Metrics.MaxDrawdown,
		TotalTrades:    len(r.Trades),
	}
}
