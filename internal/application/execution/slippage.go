package execution

import (
	"math"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// MaxSlippageBps es el tope de slippage (5%).
const MaxSlippageBps = 500

// SlippageParams son los factores de impacto de un tier.
type SlippageParams struct {
	Linear              float64
	Sqrt                float64
	LiquidityAdjustment float64
}

var defaultSlippageParams = map[domain.LiquidityTier]SlippageParams{
	domain.Tier1: {Linear: 0.001, Sqrt: 0.002, LiquidityAdjustment: 0.5},
	domain.Tier2: {Linear: 0.002, Sqrt: 0.004, LiquidityAdjustment: 0.7},
	domain.Tier3: {Linear: 0.005, Sqrt: 0.008, LiquidityAdjustment: 1.0},
	domain.Tier4: {Linear: 0.015, Sqrt: 0.025, LiquidityAdjustment: 1.5},
}

// SlippageModel estima slippage lineal + raíz cuadrada del tamaño.
type SlippageModel struct {
	params map[domain.LiquidityTier]SlippageParams
}

// NewSlippageModel crea el modelo con los factores por defecto.
func NewSlippageModel() SlippageModel {
	return SlippageModel{params: defaultSlippageParams}
}

// Bps calcula el slippage en puntos básicos para una orden de orderUSD.
// Monótono no decreciente en el tamaño, con tope en MaxSlippageBps.
func (m SlippageModel) Bps(orderUSD float64, mc domain.MarketConditions) float64 {
	if orderUSD <= 0 {
		return 0
	}
	p := m.params[mc.Tier]
	size := orderUSD / 1_000_000

	base := p.Linear*size + p.Sqrt*math.Sqrt(size)
	liquidityMult := p.LiquidityAdjustment / math.Max(0.1, mc.LiquidityScore)
	volatilityMult := 1 + mc.Volatility1h*2

	return math.Min(base*liquidityMult*volatilityMult*10_000, MaxSlippageBps)
}
