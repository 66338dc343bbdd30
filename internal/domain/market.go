package domain

import "time"

// LiquidityTier clasifica un activo según su volumen de 24h.
type LiquidityTier int

const (
	Tier1 LiquidityTier = iota + 1 // >= $1B
	Tier2                          // >= $100M
	Tier3                          // >= $10M
	Tier4                          // resto
)

// String devuelve "tier1".."tier4".
func (t LiquidityTier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	default:
		return "tier4"
	}
}

// MarketConditions es la foto sintética del mercado en el momento de una orden.
// Se deriva de nuevo para cada orden; no se persiste ni se cachea.
type MarketConditions struct {
	Timestamp      time.Time
	Symbol         string
	Bid            float64
	Ask            float64
	SpreadBps      float64
	Volume24h      float64 // USD
	Volatility1h   float64
	LiquidityScore float64 // [0, 1]
	Tier           LiquidityTier
}

// Mid devuelve el punto medio entre bid y ask.
func (m MarketConditions) Mid() float64 {
	return (m.Bid + m.Ask) / 2
}

// Spread devuelve ask - bid en unidades de precio.
func (m MarketConditions) Spread() float64 {
	return m.Ask - m.Bid
}
