package walkforward

import (
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/samber/lo"
)

// Grid define los valores a probar por parámetro. Una lista vacía usa el
// valor de la configuración base.
type Grid struct {
	CorrelationThresholds []float64 `yaml:"correlation_threshold"`
	MinConfidences        []float64 `yaml:"min_confidence"`
	MaxPositionSizes      []float64 `yaml:"max_position_size"`
}

// DefaultGrid es el grid por defecto del walk-forward.
func DefaultGrid() Grid {
	return Grid{
		CorrelationThresholds: []float64{0.3, 0.35, 0.4},
		MinConfidences:        []float64{0.7, 0.75, 0.8},
		MaxPositionSizes:      []float64{0.01, 0.02},
	}
}

// Params devuelve el producto cartesiano del grid, en orden estable.
func (g Grid) Params(base domain.BacktestConfig) []domain.ParamSet {
	thresholds := orDefault(g.CorrelationThresholds, base.CorrelationThreshold)
	confidences := orDefault(g.MinConfidences, base.MinConfidence)
	sizes := orDefault(g.MaxPositionSizes, base.MaxPositionSize)

	out := make([]domain.ParamSet, 0, len(thresholds)*len(confidences)*len(sizes))
	for _, th := range thresholds {
		for _, mc := range confidences {
			for _, mp := range sizes {
				out = append(out, domain.ParamSet{
					CorrelationThreshold: th,
					MinConfidence:        mc,
					MaxPositionSize:      mp,
				})
			}
		}
	}
	return out
}

func orDefault(values []float64, fallback float64) []float64 {
	if len(values) == 0 {
		return []float64{fallback}
	}
	return lo.Uniq(values)
}
