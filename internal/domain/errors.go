package domain

import "errors"

// Errores tipados del dominio. Los llamadores los comparan con errors.Is;
// los mensajes concretos se añaden con fmt.Errorf("...: %w", Err...).
var (
	ErrUnknownOrderType    = errors.New("unknown order type")
	ErrUnknownSide         = errors.New("unknown order side")
	ErrUnknownTimeframe    = errors.New("unknown timeframe")
	ErrUnknownTimeInForce  = errors.New("unknown time in force")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrInvalidConfig       = errors.New("invalid backtest config")
	ErrNoData              = errors.New("no historical data available")
	ErrInsufficientPeriods = errors.New("not enough walk-forward periods")
	ErrRunNotFound         = errors.New("backtest run not found")
)
