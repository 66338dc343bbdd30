package domain

import (
	"fmt"
	"time"
)

// PositionSide es la dirección de una posición abierta o cerrada.
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// SideFor devuelve la dirección de la posición que abre una orden de ese lado.
func SideFor(s Side) PositionSide {
	if s == SideBuy {
		return Long
	}
	return Short
}

// ExitReason explica por qué se cerró una posición.
type ExitReason string

const (
	ExitMaxHolding ExitReason = "max_holding"
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitEndOfData  ExitReason = "end_of_data"
)

// Position es una posición abierta en el ledger del backtest.
type Position struct {
	ID             string
	Symbol         string
	Side           PositionSide
	Quantity       float64 // siempre positiva; Side indica la dirección
	EntryPrice     float64
	EntryTime      time.Time
	EntryFees      float64
	ExpectedReturn float64 // take-profit
	RiskLevel      float64 // stop-loss
	Pair           string  // la otra pierna de la oportunidad
	Exits          int     // cierres parciales ya registrados
}

// SignedQuantity devuelve qty positiva para long y negativa para short.
func (p Position) SignedQuantity() float64 {
	if p.Side == Short {
		return -p.Quantity
	}
	return p.Quantity
}

// UnrealizedPct devuelve el rendimiento sin realizar al precio dado, sin fees.
func (p Position) UnrealizedPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	pct := price/p.EntryPrice - 1
	if p.Side == Short {
		return -pct
	}
	return pct
}

// Trade es una operación cerrada. Se registra solo al cerrar la posición,
// con todos los campos de salida ya definitivos.
type Trade struct {
	ID            string
	EntryTime     time.Time
	ExitTime      time.Time
	Symbol        string
	Side          PositionSide
	EntryPrice    float64
	ExitPrice     float64
	Quantity      float64
	PnL           float64 // neto de fees de entrada y salida
	PnLPct        float64 // PnL / nocional de entrada
	Fees          float64
	DurationHours float64
	ExitReason    ExitReason
}

// IsProfitable devuelve true si el PnL neto es positivo.
func (t Trade) IsProfitable() bool {
	return t.PnL > 0
}

// CloseTrade construye el Trade que resulta de cerrar qty unidades de p.
// Las fees de entrada se prorratean por la fracción cerrada. El ID del trade es
// el de la posición con el número de cierre como sufijo, así cada cierre
// parcial queda identificado por separado.
func CloseTrade(p Position, qty, exitPrice, exitFees float64, exitTime time.Time, reason ExitReason) Trade {
	entryFees := p.EntryFees
	if p.Quantity > 0 && qty < p.Quantity {
		entryFees = p.EntryFees * qty / p.Quantity
	}
	gross := (exitPrice - p.EntryPrice) * qty
	if p.Side == Short {
		gross = -gross
	}
	fees := entryFees + exitFees
	pnl := gross - fees

	var pnlPct float64
	if notional := p.EntryPrice * qty; notional > 0 {
		pnlPct = pnl / notional
	}

	return Trade{
		ID:            fmt.Sprintf("%s-%d", p.ID, p.Exits+1),
		EntryTime:     p.EntryTime,
		ExitTime:      exitTime,
		Symbol:        p.Symbol,
		Side:          p.Side,
		EntryPrice:    p.EntryPrice,
		ExitPrice:     exitPrice,
		Quantity:      qty,
		PnL:           pnl,
		PnLPct:        pnlPct,
		Fees:          fees,
		DurationHours: exitTime.Sub(p.EntryTime).Hours(),
		ExitReason:    reason,
	}
}
