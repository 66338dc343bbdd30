package strategy

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/alejandrodnm/execsim/internal/ports"
)

const correlationName = "correlation_breakdown"

const (
	minPairHistory     = 50 // cierres mínimos por activo
	recentWindow       = 20
	minRecentReturns   = 10
	minHistoricReturns = 20
	maxConfidence      = 0.95
	baseRisk           = 0.15
	maxRisk            = 0.25
	unknownExpected    = 0.10
)

// quoteSuffixes se eliminan del símbolo para obtener el activo base.
var quoteSuffixes = []string{"USDC", "USDT", "BUSD"}

// Asset describe las características esperadas de un activo del universo.
type Asset struct {
	Rank       int     // posición por capitalización
	Volatility float64 // volatilidad esperada
	Liquidity  float64 // score [0, 1]
}

// DefaultUniverse son las 14 altcoins principales por capitalización.
func DefaultUniverse() map[string]Asset {
	return map[string]Asset{
		"BTC":   {Rank: 1, Volatility: 0.04, Liquidity: 0.8},
		"ETH":   {Rank: 2, Volatility: 0.05, Liquidity: 0.9},
		"BNB":   {Rank: 3, Volatility: 0.06, Liquidity: 0.7},
		"SOL":   {Rank: 4, Volatility: 0.08, Liquidity: 0.6},
		"ADA":   {Rank: 5, Volatility: 0.07, Liquidity: 0.5},
		"AVAX":  {Rank: 6, Volatility: 0.09, Liquidity: 0.4},
		"DOT":   {Rank: 7, Volatility: 0.08, Liquidity: 0.4},
		"LINK":  {Rank: 8, Volatility: 0.07, Liquidity: 0.5},
		"MATIC": {Rank: 9, Volatility: 0.09, Liquidity: 0.3},
		"UNI":   {Rank: 10, Volatility: 0.10, Liquidity: 0.3},
		"ATOM":  {Rank: 11, Volatility: 0.12, Liquidity: 0.2},
		"FTM":   {Rank: 12, Volatility: 0.14, Liquidity: 0.2},
		"ALGO":  {Rank: 13, Volatility: 0.13, Liquidity: 0.2},
		"VET":   {Rank: 14, Volatility: 0.15, Liquidity: 0.1},
	}
}

// CorrelationConfig configura el detector de rupturas de correlación.
type CorrelationConfig struct {
	Threshold        float64 // |hist - actual| mínimo
	MinConfidence    float64
	MaxOpportunities int
	Universe         map[string]Asset
}

// DefaultCorrelationConfig devuelve los umbrales por defecto de un backtest.
func DefaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		Threshold:        0.35,
		MinConfidence:    0.75,
		MaxOpportunities: 5,
		Universe:         DefaultUniverse(),
	}
}

// CorrelationBreakdown detecta pares de activos cuya correlación reciente
// (últimos 20 cierres) se separa de la histórica (cierres [-50, -20)).
// Opera sobre el par con la expectativa de que la correlación vuelva.
type CorrelationBreakdown struct {
	cfg CorrelationConfig
}

// NewCorrelationBreakdown crea el detector con la configuración dada.
func NewCorrelationBreakdown(cfg CorrelationConfig) *CorrelationBreakdown {
	if cfg.MaxOpportunities <= 0 {
		cfg.MaxOpportunities = 5
	}
	if cfg.Universe == nil {
		cfg.Universe = DefaultUniverse()
	}
	return &CorrelationBreakdown{cfg: cfg}
}

// Name implementa ports.Strategy.
func (s *CorrelationBreakdown) Name() string {
	return correlationName
}

// WithParams implementa ports.TunableStrategy.
func (s *CorrelationBreakdown) WithParams(p domain.StrategyParams) ports.Strategy {
	cfg := s.cfg
	cfg.Threshold = p.CorrelationThreshold
	cfg.MinConfidence = p.MinConfidence
	return &CorrelationBreakdown{cfg: cfg}
}

type candidate struct {
	symbol string
	base   string
	asset  Asset
	known  bool
	closes []float64
}

// Detect implementa ports.Strategy. Devuelve como mucho MaxOpportunities
// oportunidades ordenadas por confianza × retorno esperado.
func (s *CorrelationBreakdown) Detect(ctx context.Context, history map[string][]domain.PricePoint) ([]domain.Opportunity, error) {
	candidates := s.candidates(history)

	var opps []domain.Opportunity
	for i := 0; i < len(candidates); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(candidates); j++ {
			if opp, ok := s.analyzePair(candidates[i], candidates[j], history); ok {
				opps = append(opps, opp)
			}
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Score() > opps[j].Score()
	})
	if len(opps) > s.cfg.MaxOpportunities {
		opps = opps[:s.cfg.MaxOpportunities]
	}
	return opps, nil
}

// candidates filtra los símbolos con historia suficiente y los ordena:
// primero los del universo por rank, luego el resto alfabéticamente.
func (s *CorrelationBreakdown) candidates(history map[string][]domain.PricePoint) []candidate {
	out := make([]candidate, 0, len(history))
	for sym, points := range history {
		if len(points) < minPairHistory {
			continue
		}
		base := BaseAsset(sym)
		asset, known := s.cfg.Universe[base]
		closes := make([]float64, len(points))
		for i, p := range points {
			closes[i] = p.Close
		}
		out = append(out, candidate{symbol: sym, base: base, asset: asset, known: known, closes: closes})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.known != b.known {
			return a.known
		}
		if a.known && a.asset.Rank != b.asset.Rank {
			return a.asset.Rank < b.asset.Rank
		}
		return a.symbol < b.symbol
	})
	return out
}

func (s *CorrelationBreakdown) analyzePair(a, b candidate, history map[string][]domain.PricePoint) (domain.Opportunity, bool) {
	recentA, histA := windows(a.closes)
	recentB, histB := windows(b.closes)

	if len(recentA) < minRecentReturns || len(histA) < minHistoricReturns {
		return domain.Opportunity{}, false
	}

	current := Pearson(recentA, recentB)
	historical := Pearson(histA, histB)
	magnitude := math.Abs(historical - current)
	if magnitude <= s.cfg.Threshold {
		return domain.Opportunity{}, false
	}

	confidence := math.Min(magnitude*2, maxConfidence)
	if confidence < s.cfg.MinConfidence {
		return domain.Opportunity{}, false
	}

	points := history[a.symbol]
	return domain.Opportunity{
		Pair1:                 a.symbol,
		Pair2:                 b.symbol,
		Confidence:            confidence,
		ExpectedReturn:        expectedReturn(a, b),
		CurrentCorrelation:    current,
		HistoricalCorrelation: historical,
		RiskLevel:             riskLevel(a, b),
		DetectedAt:            points[len(points)-1].Timestamp,
		Strategy:              correlationName,
	}, true
}

// windows devuelve los retornos de la ventana reciente y de la histórica.
func windows(closes []float64) (recent, historical []float64) {
	n := len(closes)
	recent = Returns(closes[n-recentWindow:])
	historical = Returns(closes[n-minPairHistory : n-recentWindow])
	return recent, historical
}

// expectedReturn favorece activos de menor capitalización, más volátiles y
// menos líquidos. Acotado a [5%, 30%].
func expectedReturn(a, b candidate) float64 {
	if !a.known || !b.known {
		return unknownExpected
	}
	rankFactor := float64(a.asset.Rank+b.asset.Rank) / 20
	volFactor := (a.asset.Volatility + b.asset.Volatility) / 2
	liqFactor := 2 - (a.asset.Liquidity+b.asset.Liquidity)/2
	er := 0.05 + rankFactor*0.02 + volFactor*0.5 + liqFactor*0.05
	return math.Min(0.3, math.Max(0.05, er))
}

func riskLevel(a, b candidate) float64 {
	if !a.known || !b.known {
		return math.Min(baseRisk*1.5, maxRisk)
	}
	avgVol := (a.asset.Volatility + b.asset.Volatility) / 2
	return math.Min(baseRisk+avgVol*0.5, maxRisk)
}

// BaseAsset elimina el sufijo de cotización: "SOLUSDT" → "SOL".
func BaseAsset(symbol string) string {
	s := strings.ToUpper(symbol)
	for _, q := range quoteSuffixes {
		if base, ok := strings.CutSuffix(s, q); ok && base != "" {
			return base
		}
	}
	return s
}

// Returns calcula los retornos simples, omitiendo los precios previos en cero.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out
}

// Pearson devuelve el coeficiente de correlación; 0 si las series difieren
// en longitud, tienen menos de 2 puntos o varianza nula.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}
	var mx, my float64
	for i := range n {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var num, sx, sy float64
	for i := range n {
		dx, dy := x[i]-mx, y[i]-my
		num += dx * dy
		sx += dx * dx
		sy += dy * dy
	}
	if sx == 0 || sy == 0 {
		return 0
	}
	return num / math.Sqrt(sx*sy)
}
