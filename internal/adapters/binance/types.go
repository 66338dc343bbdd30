package binance

import "encoding/json"

// rawKline es una fila de GET /api/v3/klines. Binance devuelve arrays
// posicionales con los precios como strings:
//
//	[openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...]
type rawKline []json.RawMessage

const (
	klineOpenTime = iota
	klineOpen
	klineHigh
	klineLow
	klineClose
	klineVolume
	klineCloseTime
	klineMinFields
)

// apiError es el cuerpo de error de Binance ({"code":-1121,"msg":"Invalid symbol."}).
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
