package domain

import "time"

// ExecutionStatus es el estado terminal de una orden simulada.
type ExecutionStatus string

const (
	StatusFilled   ExecutionStatus = "filled"
	StatusPartial  ExecutionStatus = "partial"
	StatusRejected ExecutionStatus = "rejected"
)

// FilledThreshold es la fracción mínima de la cantidad pedida para considerar
// una orden completamente ejecutada.
const FilledThreshold = 0.999

// Fill es una ejecución (posiblemente parcial). Como mucho una por orden.
type Fill struct {
	Timestamp time.Time
	Price     float64
	Quantity  float64
	Fee       float64
	FeeAsset  string
	IsMaker   bool
}

// ExecutionResult es el resultado completo de simular una orden.
type ExecutionResult struct {
	OrderID          string
	Request          OrderRequest
	Conditions       MarketConditions
	Fills            []Fill // 0 o 1 elemento
	Status           ExecutionStatus
	TotalFilledQty   float64
	AverageFillPrice float64
	TotalFees        float64
	SlippageBps      float64
	ExecutionTimeMs  float64
	MarketImpactBps  float64
}

// IsFullyFilled devuelve true si se llenó al menos el 99.9% de lo pedido.
func (r ExecutionResult) IsFullyFilled() bool {
	return r.Status == StatusFilled
}

// FilledNotional devuelve qty × precio medio.
func (r ExecutionResult) FilledNotional() float64 {
	return r.TotalFilledQty * r.AverageFillPrice
}

// ExecutionStats son los contadores acumulados del simulador.
type ExecutionStats struct {
	TotalOrders     int
	FilledOrders    int
	PartialFills    int
	RejectedOrders  int
	FillRate        float64
	PartialFillRate float64
	RejectionRate   float64
	TotalFees       float64 // fees pagadas por el ledger del backtest; cero fuera de una corrida
}

// NewExecutionStats calcula los ratios a partir de los contadores.
func NewExecutionStats(total, filled, partial, rejected int) ExecutionStats {
	s := ExecutionStats{
		TotalOrders:    total,
		FilledOrders:   filled,
		PartialFills:   partial,
		RejectedOrders: rejected,
	}
	if total > 0 {
		n := float64(total)
		s.FillRate = float64(filled) / n
		s.PartialFillRate = float64(partial) / n
		s.RejectionRate = float64(rejected) / n
	}
	return s
}
