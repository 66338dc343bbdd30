package ports

import "github.com/alejandrodnm/execsim/internal/domain"

// PositionSizer calcula cuánto comprar o vender.
type PositionSizer interface {
	Size(portfolioValue, entryPrice, volatility float64) domain.PositionSize
}

// OpportunitySizer es un PositionSizer que además aprovecha la confianza y
// el riesgo de la oportunidad (Kelly).
type OpportunitySizer interface {
	PositionSizer
	SizeFor(opp domain.Opportunity, portfolioValue, entryPrice, volatility float64) domain.PositionSize
}
