package execution

import (
	"math"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// TierParams son los parámetros de liquidez de un tier.
type TierParams struct {
	BaseSpreadBps float64
	DepthFactor   float64
	ImpactFactor  float64
}

var tierThresholds = []struct {
	minVolume float64
	tier      domain.LiquidityTier
}{
	{1_000_000_000, domain.Tier1},
	{100_000_000, domain.Tier2},
	{10_000_000, domain.Tier3},
}

var defaultTierParams = map[domain.LiquidityTier]TierParams{
	domain.Tier1: {BaseSpreadBps: 2, DepthFactor: 1.0, ImpactFactor: 0.5},
	domain.Tier2: {BaseSpreadBps: 5, DepthFactor: 0.7, ImpactFactor: 0.8},
	domain.Tier3: {BaseSpreadBps: 10, DepthFactor: 0.4, ImpactFactor: 1.2},
	domain.Tier4: {BaseSpreadBps: 25, DepthFactor: 0.2, ImpactFactor: 2.0},
}

// ClassifyTier asigna un tier por volumen de 24h en USD.
func ClassifyTier(volume24h float64) domain.LiquidityTier {
	for _, th := range tierThresholds {
		if volume24h >= th.minVolume {
			return th.tier
		}
	}
	return domain.Tier4
}

// LiquidityModel deriva spread sintético y score de liquidez. Determinista.
type LiquidityModel struct {
	params map[domain.LiquidityTier]TierParams
}

// NewLiquidityModel crea el modelo con los parámetros por defecto.
func NewLiquidityModel() LiquidityModel {
	return LiquidityModel{params: defaultTierParams}
}

// Params devuelve los parámetros del tier.
func (m LiquidityModel) Params(tier domain.LiquidityTier) TierParams {
	return m.params[tier]
}

// Conditions calcula la foto de mercado para una orden.
//
//	spread_bps = base × (1 + 10·volatility)
//	liquidity  = min(1, volume/1e6 × depth)
func (m LiquidityModel) Conditions(ts time.Time, symbol string, price, volume24h, volatility float64) domain.MarketConditions {
	tier := ClassifyTier(volume24h)
	p := m.params[tier]

	spreadBps := p.BaseSpreadBps * (1 + volatility*10)
	spreadAbs := price * spreadBps / 10_000

	return domain.MarketConditions{
		Timestamp:      ts,
		Symbol:         symbol,
		Bid:            price - spreadAbs/2,
		Ask:            price + spreadAbs/2,
		SpreadBps:      spreadBps,
		Volume24h:      volume24h,
		Volatility1h:   volatility,
		LiquidityScore: math.Min(1, volume24h/1_000_000*p.DepthFactor),
		Tier:           tier,
	}
}
