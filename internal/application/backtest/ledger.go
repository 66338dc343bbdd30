package backtest

import (
	"sort"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// dustQty es la cantidad por debajo de la cual una posición se considera cerrada.
const dustQty = 1e-12

// ledger is the cash/position book of a single run. Owned by one replay, never shared.
// Cash and paid fees are kept in decimal so thousands of fills do not drift
// the balance; prices and quantities stay float64.
type ledger struct {
	cash      decimal.Decimal
	fees      decimal.Decimal
	positions map[string]*domain.Position // symbol → open position
	lastPrice map[string]float64
}

func newLedger(capital float64) *ledger {
	return &ledger{
		cash:      decimal.NewFromFloat(capital),
		positions: make(map[string]*domain.Position),
		lastPrice: make(map[string]float64),
	}
}

// inUse reports whether symbol is held, or is the blocked pair leg of an open position.
func (l *ledger) inUse(symbol string) bool {
	if _, ok := l.positions[symbol]; ok {
		return true
	}
	for _, pos := range l.positions {
		if pos.Pair == symbol {
			return true
		}
	}
	return false
}

// feesPaid is the total of entry and exit fees booked so far.
func (l *ledger) feesPaid() float64 {
	return l.fees.InexactFloat64()
}

func notional(qty, price float64) decimal.Decimal {
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
}

// mark records the latest known price of each symbol.
func (l *ledger) mark(prices map[string]float64) {
	for sym, p := range prices {
		l.lastPrice[sym] = p
	}
}

// equity is cash plus the mark-to-market value of every open position.
func (l *ledger) equity() float64 {
	total := l.cash
	for sym, pos := range l.positions {
		total = total.Add(notional(pos.SignedQuantity(), l.lastPrice[sym]))
	}
	return total.InexactFloat64()
}

// open books an entry fill: long pays value+fees, short receives value-fees.
func (l *ledger) open(res domain.ExecutionResult, opp domain.Opportunity, at time.Time) *domain.Position {
	side := domain.SideFor(res.Request.Side)
	value := notional(res.TotalFilledQty, res.AverageFillPrice)
	fees := decimal.NewFromFloat(res.TotalFees)
	if side == domain.Long {
		l.cash = l.cash.Sub(value.Add(fees))
	} else {
		l.cash = l.cash.Add(value.Sub(fees))
	}
	l.fees = l.fees.Add(fees)

	pos := &domain.Position{
		ID:             uuid.NewString(),
		Symbol:         res.Request.Symbol,
		Side:           side,
		Quantity:       res.TotalFilledQty,
		EntryPrice:     res.AverageFillPrice,
		EntryTime:      at,
		EntryFees:      res.TotalFees,
		ExpectedReturn: opp.ExpectedReturn,
		RiskLevel:      opp.RiskLevel,
		Pair:           opp.Pair2,
	}
	l.positions[pos.Symbol] = pos
	return pos
}

// close books an exit fill and returns the completed trade. A partial exit
// reduces the position and keeps the remainder open.
func (l *ledger) close(pos *domain.Position, res domain.ExecutionResult, at time.Time, reason domain.ExitReason) domain.Trade {
	qty := min(res.TotalFilledQty, pos.Quantity)
	price := res.AverageFillPrice
	proceeds := notional(qty, price)
	fees := decimal.NewFromFloat(res.TotalFees)
	if pos.Side == domain.Long {
		l.cash = l.cash.Add(proceeds.Sub(fees))
	} else {
		l.cash = l.cash.Sub(proceeds.Add(fees))
	}
	l.fees = l.fees.Add(fees)
	return l.settle(pos, qty, price, res.TotalFees, at, reason)
}

// settleAtMark closes the whole position at its last known price without
// fees, so the final equity point stays consistent with the closed trades.
func (l *ledger) settleAtMark(pos *domain.Position, at time.Time) domain.Trade {
	price := l.lastPrice[pos.Symbol]
	l.cash = l.cash.Add(notional(pos.SignedQuantity(), price))
	return l.settle(pos, pos.Quantity, price, 0, at, domain.ExitEndOfData)
}

func (l *ledger) settle(pos *domain.Position, qty, price, fees float64, at time.Time, reason domain.ExitReason) domain.Trade {
	trade := domain.CloseTrade(*pos, qty, price, fees, at, reason)

	remaining := pos.Quantity - qty
	if remaining <= dustQty {
		delete(l.positions, pos.Symbol)
		return trade
	}
	pos.EntryFees -= pos.EntryFees * qty / pos.Quantity
	pos.Quantity = remaining
	pos.Exits++
	return trade
}

// openSymbols returns the symbols with an open position, sorted.
func (l *ledger) openSymbols() []string {
	out := make([]string, 0, len(l.positions))
	for sym := range l.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
