package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// mapKline convierte una fila raw a domain.Bar. La API manda precios y volumen
// como strings; NaN/Inf pasan el parseo y los descarta Bar.Valid.
func mapKline(r rawKline) (domain.Bar, error) {
	if len(r) < klineMinFields {
		return domain.Bar{}, fmt.Errorf("kline has %d fields, want at least %d", len(r), klineMinFields)
	}
	var openMs int64
	if err := json.Unmarshal(r[klineOpenTime], &openMs); err != nil {
		return domain.Bar{}, fmt.Errorf("open time: %w", err)
	}

	fields := [5]float64{}
	for i, idx := range []int{klineOpen, klineHigh, klineLow, klineClose, klineVolume} {
		var s string
		if err := json.Unmarshal(r[idx], &s); err != nil {
			return domain.Bar{}, fmt.Errorf("field %d: %w", idx, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("field %d: %w", idx, err)
		}
		fields[i] = v
	}

	return domain.Bar{
		Timestamp: time.UnixMilli(openMs).UTC(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

// openTimeMs devuelve el openTime de la fila en milisegundos, para paginar.
func openTimeMs(r rawKline) (int64, error) {
	if len(r) == 0 {
		return 0, fmt.Errorf("empty kline")
	}
	var ms int64
	err := json.Unmarshal(r[klineOpenTime], &ms)
	return ms, err
}
