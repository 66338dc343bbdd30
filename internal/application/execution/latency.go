package execution

import (
	"math"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// LatencyConfig parametriza el retraso sintético de ejecución.
type LatencyConfig struct {
	BaseMs           float64 `yaml:"base_ms"`
	ProcessingMs     float64 `yaml:"processing_ms"`
	VolatilityFactor float64 `yaml:"volatility_factor"` // ms extra por unidad de volatilidad
	JitterMeanMs     float64 `yaml:"jitter_mean_ms"`    // media del jitter exponencial
	MaxMs            float64 `yaml:"max_ms"`
}

// DefaultLatencyConfig: 50ms red + 20ms proceso + vol×100 + Exp(20), tope 2s.
func DefaultLatencyConfig() LatencyConfig {
	return LatencyConfig{
		BaseMs:           50,
		ProcessingMs:     20,
		VolatilityFactor: 100,
		JitterMeanMs:     20,
		MaxMs:            2000,
	}
}

// LatencyModel calcula el retraso de ejecución. No bloquea: el valor es informativo.
type LatencyModel struct {
	cfg LatencyConfig
	rng RandomSource
}

// NewLatencyModel crea el modelo con la fuente aleatoria inyectada.
func NewLatencyModel(cfg LatencyConfig, rng RandomSource) LatencyModel {
	return LatencyModel{cfg: cfg, rng: rng}
}

// DelayMs devuelve el retraso en milisegundos.
func (m LatencyModel) DelayMs(mc domain.MarketConditions) float64 {
	delay := m.cfg.BaseMs + m.cfg.ProcessingMs + mc.Volatility1h*m.cfg.VolatilityFactor
	delay += m.rng.ExpFloat64() * m.cfg.JitterMeanMs
	return math.Min(delay, m.cfg.MaxMs)
}
