package ports

import (
	"context"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// Strategy detecta oportunidades a partir del histórico de cierres.
// El backtester solo le pasa velas con timestamp <= el tick actual.
type Strategy interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// Detect devuelve las oportunidades para el histórico dado (símbolo → cierres).
	Detect(ctx context.Context, history map[string][]domain.PricePoint) ([]domain.Opportunity, error)
}

// TunableStrategy es una estrategia cuyos umbrales vienen de la configuración
// de la corrida (walk-forward los optimiza).
type TunableStrategy interface {
	Strategy

	// WithParams devuelve una copia configurada con los parámetros dados.
	WithParams(params domain.StrategyParams) Strategy
}
