package synthetic

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
)

const year = 365 * 24 * time.Hour

// Params configura el generador de movimiento browniano geométrico.
// Drift y Volatility son anualizados.
type Params struct {
	Start      time.Time        `yaml:"start"`
	Bars       int              `yaml:"bars"`
	Timeframe  domain.Timeframe `yaml:"timeframe"`
	StartPrice float64          `yaml:"start_price"`
	Drift      float64          `yaml:"drift"`
	Volatility float64          `yaml:"volatility"`
	Volume     float64          `yaml:"volume"` // volumen base medio por vela
	Seed       uint64           `yaml:"seed"`

	// Correlation es la correlación de cada símbolo con el factor común.
	Correlation float64 `yaml:"correlation"`
	// BreakAt, si es > 0, invierte la exposición al factor de los símbolos en
	// posición impar a partir de esa vela (ruptura de correlación).
	BreakAt int `yaml:"break_at"`
}

// DefaultParams devuelve un mercado horario de 30 días parecido a un altcoin.
func DefaultParams(start time.Time) Params {
	return Params{
		Start:       start,
		Bars:        720,
		Timeframe:   domain.Timeframe1h,
		StartPrice:  100,
		Drift:       0.05,
		Volatility:  0.6,
		Volume:      1000,
		Seed:        1,
		Correlation: 0.8,
	}
}

// Generate genera una serie para un único símbolo.
func Generate(symbol string, p Params) domain.Series {
	return GenerateUniverse([]string{symbol}, p)[symbol]
}

// GenerateUniverse genera series correlacionadas para todos los símbolos.
// Mismos parámetros y semilla producen exactamente las mismas velas.
func GenerateUniverse(symbols []string, p Params) map[string]domain.Series {
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x5851f42d4c957f2d))
	interval := p.Timeframe.Duration()
	if interval <= 0 {
		interval = time.Hour
	}
	dt := float64(interval) / float64(year)
	sigma := p.Volatility * math.Sqrt(dt)
	mu := (p.Drift - p.Volatility*p.Volatility/2) * dt
	rho := math.Max(-1, math.Min(1, p.Correlation))
	idio := math.Sqrt(1 - rho*rho)

	bars := make([][]domain.Bar, len(symbols))
	prices := make([]float64, len(symbols))
	for i := range symbols {
		bars[i] = make([]domain.Bar, 0, max(p.Bars, 0))
		// precios iniciales escalonados para que no coincidan todos
		prices[i] = p.StartPrice * (1 + 0.1*float64(i))
	}

	for n := range max(p.Bars, 0) {
		ts := p.Start.Add(time.Duration(n) * interval)
		market := rng.NormFloat64()
		for i := range symbols {
			beta := rho
			if p.BreakAt > 0 && n >= p.BreakAt && i%2 == 1 {
				beta = -rho
			}
			z := beta*market + idio*rng.NormFloat64()

			open := prices[i]
			closePrice := open * math.Exp(mu+sigma*z)
			wick := math.Abs(rng.NormFloat64()) * sigma * 0.5
			high := math.Max(open, closePrice) * (1 + wick)
			low := math.Min(open, closePrice) * math.Max(0.5, 1-wick)
			volume := p.Volume * (0.5 + rng.Float64())

			bars[i] = append(bars[i], domain.Bar{
				Timestamp: ts,
				Open:      open,
				High:      high,
				Low:       low,
				Close:     closePrice,
				Volume:    volume,
			})
			prices[i] = closePrice
		}
	}

	out := make(map[string]domain.Series, len(symbols))
	for i, sym := range symbols {
		out[sym] = domain.NewSeries(sym, p.Timeframe, bars[i])
	}
	return out
}
