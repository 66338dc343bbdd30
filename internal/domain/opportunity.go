package domain

import "time"

// Opportunity es una ruptura de correlación detectada entre dos activos.
// Pair1 es la pierna que se opera; Pair2 queda bloqueada mientras la posición esté abierta.
type Opportunity struct {
	Pair1                 string
	Pair2                 string
	Confidence            float64 // [0, 1]
	ExpectedReturn        float64 // fracción, p.ej. 0.05 = 5%
	CurrentCorrelation    float64
	HistoricalCorrelation float64
	RiskLevel             float64 // fracción, se usa también como volatilidad de respaldo
	DetectedAt            time.Time
	Strategy              string
}

// Magnitude devuelve |histórica - actual|.
func (o Opportunity) Magnitude() float64 {
	d := o.HistoricalCorrelation - o.CurrentCorrelation
	if d < 0 {
		return -d
	}
	return d
}

// Score ordena oportunidades: confianza × retorno esperado.
func (o Opportunity) Score() float64 {
	return o.Confidence * o.ExpectedReturn
}

// EntrySide: si la correlación cayó se espera convergencia → BUY; si subió → SELL.
func (o Opportunity) EntrySide() Side {
	if o.CurrentCorrelation < o.HistoricalCorrelation {
		return SideBuy
	}
	return SideSell
}

// PositionSize es el tamaño calculado por el sizer.
type PositionSize struct {
	Quantity      float64
	PositionValue float64
	Fraction      float64 // fracción de la cartera
}

// IsZero devuelve true si no hay nada que operar.
func (p PositionSize) IsZero() bool {
	return p.Quantity <= 0 || p.PositionValue <= 0
}

// StrategyParams son los umbrales de estrategia que vienen de la corrida.
type StrategyParams struct {
	CorrelationThreshold float64
	MinConfidence        float64
}

// StrategyParams extrae los umbrales de estrategia de la configuración.
func (c BacktestConfig) StrategyParams() StrategyParams {
	return StrategyParams{
		CorrelationThreshold: c.CorrelationThreshold,
		MinConfidence:        c.MinConfidence,
	}
}
