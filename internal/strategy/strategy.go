package strategy

import (
	"fmt"
	"sort"

	"github.com/alejandrodnm/execsim/internal/ports"
)

// Registry mantiene las estrategias disponibles indexadas por nombre.
type Registry map[string]ports.Strategy

// NewRegistry crea un registry vacío.
func NewRegistry() Registry {
	return make(Registry)
}

// NewDefaultRegistry crea un registry con las estrategias integradas.
func NewDefaultRegistry() Registry {
	r := NewRegistry()
	r.Register(NewCorrelationBreakdown(DefaultCorrelationConfig()))
	return r
}

// Register añade una estrategia al registry.
func (r Registry) Register(s ports.Strategy) {
	r[s.Name()] = s
}

// Get devuelve la estrategia por nombre.
func (r Registry) Get(name string) (ports.Strategy, bool) {
	s, ok := r[name]
	return s, ok
}

// Lookup devuelve la estrategia por nombre o un error que lista las disponibles.
func (r Registry) Lookup(name string) (ports.Strategy, error) {
	s, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("strategy.Lookup: unknown strategy %q (available: %v)", name, r.Names())
	}
	return s, nil
}

// Names devuelve los nombres registrados en orden alfabético.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
