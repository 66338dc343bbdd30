package risk

import (
	"math"

	"github.com/alejandrodnm/execsim/internal/domain"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultSafetyFactor   = 0.25 // fracción de Kelly completo
	DefaultMaxPosition    = 0.02 // 2% de la cartera
	DefaultBaseVolatility = 0.02
	minVolatility         = 0.001
)

// KellySizer calcula fracciones de Kelly con factor de seguridad y tope.
type KellySizer struct {
	SafetyFactor float64
	MaxPosition  float64
}

// NewKellySizer crea un KellySizer con safety 0.25 y el tope dado.
func NewKellySizer(maxPosition float64) KellySizer {
	if maxPosition <= 0 {
		maxPosition = DefaultMaxPosition
	}
	return KellySizer{SafetyFactor: DefaultSafetyFactor, MaxPosition: maxPosition}
}

// KellyFraction devuelve f = (b·p - q) / b con b = expectedReturn/risk.
// Nunca negativa.
func KellyFraction(winProb, expectedReturn, risk float64) float64 {
	if risk <= 0 || expectedReturn <= 0 {
		return 0
	}
	b := expectedReturn / risk
	p := winProb
	q := 1 - p
	return math.Max(0, (b*p-q)/b)
}

// Fraction aplica el factor de seguridad y el tope a la fracción de Kelly.
func (k KellySizer) Fraction(winProb, expectedReturn, risk float64) float64 {
	f := KellyFraction(winProb, expectedReturn, risk) * k.SafetyFactor
	return math.Max(0, math.Min(f, k.MaxPosition))
}

// VolatilityAdjustedSizer reduce el tamaño cuando la volatilidad supera la base.
// Implementa ports.PositionSizer y ports.OpportunitySizer.
type VolatilityAdjustedSizer struct {
	Kelly          KellySizer
	BaseVolatility float64
}

// NewVolatilityAdjustedSizer crea el sizer por defecto para el tope dado.
func NewVolatilityAdjustedSizer(maxPosition float64) VolatilityAdjustedSizer {
	return VolatilityAdjustedSizer{
		Kelly:          NewKellySizer(maxPosition),
		BaseVolatility: DefaultBaseVolatility,
	}
}

// Adjustment devuelve min(1, base / max(vol, 0.001)).
func (v VolatilityAdjustedSizer) Adjustment(volatility float64) float64 {
	return math.Min(1, v.BaseVolatility/math.Max(volatility, minVolatility))
}

// Size calcula el tamaño sin información de la oportunidad: el tope máximo
// ajustado por volatilidad.
func (v VolatilityAdjustedSizer) Size(portfolioValue, entryPrice, volatility float64) domain.PositionSize {
	return v.build(v.Kelly.MaxPosition*v.Adjustment(volatility), portfolioValue, entryPrice)
}

// SizeFor usa Kelly con la confianza como probabilidad de acierto.
func (v VolatilityAdjustedSizer) SizeFor(opp domain.Opportunity, portfolioValue, entryPrice, volatility float64) domain.PositionSize {
	f := v.Kelly.Fraction(opp.Confidence, opp.ExpectedReturn, opp.RiskLevel)
	return v.build(f*v.Adjustment(volatility), portfolioValue, entryPrice)
}

func (v VolatilityAdjustedSizer) build(fraction, portfolioValue, entryPrice float64) domain.PositionSize {
	if fraction <= 0 || portfolioValue <= 0 || entryPrice <= 0 || math.IsNaN(fraction) {
		return domain.PositionSize{}
	}
	value := portfolioValue * fraction
	return domain.PositionSize{
		Quantity:      value / entryPrice,
		PositionValue: value,
		Fraction:      fraction,
	}
}

// RealizedVolatility es la desviación estándar poblacional de los retornos simples.
// Cero si hay menos de 2 retornos.
func RealizedVolatility(prices []float64) float64 {
	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns = append(returns, prices[i]/prices[i-1]-1)
		}
	}
	if len(returns) < 2 {
		return 0
	}
	return stat.PopStdDev(returns, nil)
}
