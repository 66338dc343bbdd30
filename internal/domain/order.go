package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side es la dirección de una orden.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite devuelve el lado contrario (para cerrar una posición).
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid devuelve true si el lado es BUY o SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType es el tipo de orden soportado por el simulador.
type OrderType string

const (
	OrderMarket   OrderType = "MARKET"
	OrderLimit    OrderType = "LIMIT"
	OrderStopLoss OrderType = "STOP_LOSS"
)

// Valid devuelve true si el tipo es uno de los soportados.
func (t OrderType) Valid() bool {
	switch t {
	case OrderMarket, OrderLimit, OrderStopLoss:
		return true
	}
	return false
}

// TimeInForce indica cuánto tiempo vive una orden. El simulador ejecuta
// todas las órdenes de forma inmediata; el campo se conserva como intención.
type TimeInForce string

const (
	TIFGoodTillCancel    TimeInForce = "GTC"
	TIFImmediateOrCancel TimeInForce = "IOC"
	TIFFillOrKill        TimeInForce = "FOK"
)

// ParseSide convierte "buy"/"BUY" en Side.
func ParseSide(s string) (Side, error) {
	side := Side(strings.ToUpper(strings.TrimSpace(s)))
	if !side.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
	}
	return side, nil
}

// ParseOrderType acepta MARKET, LIMIT, STOP_LOSS (también "stop-loss").
func ParseOrderType(s string) (OrderType, error) {
	norm := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")
	t := OrderType(norm)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOrderType, s)
	}
	return t, nil
}

// ParseTimeInForce acepta GTC, IOC o FOK. Cadena vacía → GTC.
func ParseTimeInForce(s string) (TimeInForce, error) {
	switch tif := TimeInForce(strings.ToUpper(strings.TrimSpace(s))); tif {
	case "":
		return TIFGoodTillCancel, nil
	case TIFGoodTillCancel, TIFImmediateOrCancel, TIFFillOrKill:
		return tif, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTimeInForce, s)
}

// OrderRequest describe la intención del trader. Es un valor inmutable:
// se crea una vez por decisión y no se modifica.
type OrderRequest struct {
	Timestamp   time.Time
	Symbol      string
	Side        Side
	Type        OrderType
	Quantity    float64
	LimitPrice  *float64 // solo LIMIT
	StopPrice   *float64 // solo STOP_LOSS
	TimeInForce TimeInForce
}

// Notional devuelve quantity × price.
func (o OrderRequest) Notional(price float64) float64 {
	return o.Quantity * price
}

// Price devuelve un puntero a p, útil para LimitPrice/StopPrice.
func Price(p float64) *float64 {
	return &p
}
