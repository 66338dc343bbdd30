package analysis

import (
	"math"

	"github.com/alejandrodnm/execsim/internal/domain"
)

const (
	DefaultSimulations = 1000
	DefaultBlockSize   = 30
)

// Sampler elige un índice uniforme en [0, n). *rand.Rand de math/rand/v2 la satisface.
type Sampler interface {
	IntN(n int) int
}

// Bootstrap remuestrea retornos por bloques contiguos para conservar la
// autocorrelación de la serie.
type Bootstrap struct {
	Simulations    int
	BlockSize      int
	PeriodsPerYear float64
}

// NewBootstrap crea un Bootstrap con 1000 simulaciones de bloques de 30 velas.
func NewBootstrap(tf domain.Timeframe) Bootstrap {
	return Bootstrap{
		Simulations:    DefaultSimulations,
		BlockSize:      DefaultBlockSize,
		PeriodsPerYear: tf.PeriodsPerYear(),
	}
}

// Run devuelve las estadísticas del retorno anualizado y del Sharpe sobre las
// muestras. ok es false si hay menos de dos bloques de retornos.
func (b Bootstrap) Run(returns []float64, rng Sampler) (stats domain.BootstrapStats, ok bool) {
	n := len(returns)
	if b.Simulations <= 0 || b.BlockSize <= 0 || n < 2*b.BlockSize {
		return domain.BootstrapStats{}, false
	}
	blocks := n / b.BlockSize

	annual := make([]float64, b.Simulations)
	sharpes := make([]float64, b.Simulations)
	sample := make([]float64, 0, blocks*b.BlockSize)
	for i := range b.Simulations {
		sample = sample[:0]
		for range blocks {
			start := rng.IntN(blocks) * b.BlockSize
			sample = append(sample, returns[start:start+b.BlockSize]...)
		}
		mean := Mean(sample)
		annual[i] = math.Pow(1+mean, b.PeriodsPerYear) - 1
		if sd := SampleStd(sample); sd > 0 {
			sharpes[i] = mean / sd * math.Sqrt(b.PeriodsPerYear)
		}
	}

	return domain.BootstrapStats{
		Simulations:  b.Simulations,
		BlockSize:    b.BlockSize,
		ReturnMean:   Mean(annual),
		ReturnStd:    PopulationStd(annual),
		ReturnCILow:  Percentile(annual, 0.025),
		ReturnCIHigh: Percentile(annual, 0.975),
		SharpeMean:   Mean(sharpes),
		SharpeStd:    PopulationStd(sharpes),
		SharpeCILow:  Percentile(sharpes, 0.025),
		SharpeCIHigh: Percentile(sharpes, 0.975),
	}, true
}

// EquityReturns son los retornos simples entre puntos consecutivos de la curva.
func EquityReturns(equity []domain.EquityPoint) []float64 {
	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Value
	}
	return pctChange(values)
}
