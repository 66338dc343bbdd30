package execution

import "math/rand/v2"

// RandomSource es la única fuente de aleatoriedad del simulador (jitter de
// latencia y fills parciales). *rand.Rand de math/rand/v2 la satisface.
type RandomSource interface {
	// Float64 devuelve un uniforme en [0, 1).
	Float64() float64
	// ExpFloat64 devuelve una exponencial de media 1.
	ExpFloat64() float64
}

// NewRandomSource devuelve un generador determinista para la semilla dada.
func NewRandomSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
