package domain

import (
	"fmt"
	"time"
)

// ParamSet es una combinación de parámetros del grid de walk-forward.
type ParamSet struct {
	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	MinConfidence        float64 `yaml:"min_confidence"`
	MaxPositionSize      float64 `yaml:"max_position_size"`
}

// Apply devuelve una copia de cfg con los parámetros aplicados.
func (p ParamSet) Apply(cfg BacktestConfig) BacktestConfig {
	cfg.CorrelationThreshold = p.CorrelationThreshold
	cfg.MinConfidence = p.MinConfidence
	cfg.MaxPositionSize = p.MaxPositionSize
	return cfg
}

// ParamsOf extrae los parámetros optimizables de una configuración.
func ParamsOf(cfg BacktestConfig) ParamSet {
	return ParamSet{
		CorrelationThreshold: cfg.CorrelationThreshold,
		MinConfidence:        cfg.MinConfidence,
		MaxPositionSize:      cfg.MaxPositionSize,
	}
}

func (p ParamSet) String() string {
	return fmt.Sprintf("threshold=%.2f confidence=%.2f max_position=%.3f",
		p.CorrelationThreshold, p.MinConfidence, p.MaxPositionSize)
}

// Window es un par train/test consecutivo del walk-forward.
type Window struct {
	Index      int
	TrainStart time.Time
	TrainEnd   time.Time
	TestStart  time.Time
	TestEnd    time.Time
}

// Period es el resultado de un Window: los mejores parámetros en train y
// su rendimiento fuera de muestra.
type Period struct {
	Window
	Params ParamSet
	Train  PerformanceMetrics
	Test   PerformanceMetrics

	// Significancia del p-valor de test corregida por comparaciones múltiples.
	SignificantBonferroni bool
	SignificantFDR        bool
}

// OverallMetrics agrega las métricas de test de todos los periodos.
type OverallMetrics struct {
	AvgReturn       float64
	MedianReturn    float64
	StdReturn       float64
	AvgSharpe       float64
	MedianSharpe    float64
	AvgDrawdown     float64
	WorstDrawdown   float64
	PositivePeriods float64 // fracción de periodos con retorno de test positivo
}

// Stability mide la consistencia fuera de muestra.
type Stability struct {
	ConsistencyRatio float64
	ReturnStability  float64 // |media|/std de los retornos de test, máx. 10
	SharpeStability  float64 // |media|/std de los Sharpe de test, máx. 10
	ReturnVolatility float64
	SharpeVolatility float64
}

// BootstrapStats resume un block bootstrap de los retornos por vela: media,
// desviación e intervalo al 95% del retorno anualizado y del Sharpe.
type BootstrapStats struct {
	Simulations  int
	BlockSize    int
	ReturnMean   float64
	ReturnStd    float64
	ReturnCILow  float64
	ReturnCIHigh float64
	SharpeMean   float64
	SharpeStd    float64
	SharpeCILow  float64
	SharpeCIHigh float64
}

// WalkForwardReport es el resultado completo de una validación walk-forward.
type WalkForwardReport struct {
	Periods          []Period
	Overall          OverallMetrics
	Stability        Stability
	OverfittingScore float64 // [0, 1], más alto = más sobreajuste
	BestParams       ParamSet
	Final            BacktestResult // corrida sobre todo el rango con BestParams
	Alpha            float64        // nivel de las correcciones de significancia
	Bootstrap        BootstrapStats // de la curva de Final; Simulations == 0 si no alcanzaron los datos
}

// IsRobust devuelve true si hay poco sobreajuste y la mayoría de periodos ganan.
func (r WalkForwardReport) IsRobust() bool {
	return r.OverfittingScore < 0.3 && r.Stability.ConsistencyRatio > 0.6
}
