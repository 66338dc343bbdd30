package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Timeframe es el intervalo de las velas históricas.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// ParseTimeframe valida un string de timeframe ("1h", "4h", ...).
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	return tf, nil
}

// Duration devuelve la duración de una vela. Cero si el timeframe no es válido.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// PeriodsPerYear devuelve cuántas velas hay en un año (cripto opera 365 días).
func (tf Timeframe) PeriodsPerYear() float64 {
	d := tf.Duration()
	if d <= 0 {
		return 365
	}
	return 365 * float64(24*time.Hour) / float64(d)
}

// Bar es una vela OHLCV.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64 // en unidades del activo base
}

// Valid comprueba la consistencia OHLCV: low <= open,close <= high, precios > 0, volumen >= 0.
func (b Bar) Valid() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if b.Low <= 0 || b.Volume < 0 {
		return false
	}
	return b.Low <= b.Open && b.Low <= b.Close && b.Open <= b.High && b.Close <= b.High
}

// QuoteVolume aproxima el volumen en USD de la vela.
func (b Bar) QuoteVolume() float64 {
	return b.Volume * b.Close
}

// PricePoint es lo que recibe una estrategia por cada vela.
type PricePoint struct {
	Timestamp time.Time
	Close     float64
}

// Series es la serie histórica de un símbolo junto con su informe de calidad.
type Series struct {
	Symbol    string
	Timeframe Timeframe
	Bars      []Bar // ordenadas por timestamp ascendente, sin duplicados
	Quality   QualityReport
}

// NewSeries ordena las velas, descarta las inválidas, elimina timestamps
// duplicados (gana la última) y evalúa la calidad de la serie.
func NewSeries(symbol string, tf Timeframe, bars []Bar) Series {
	clean := make([]Bar, 0, len(bars))
	invalid := 0
	for _, b := range bars {
		if !b.Valid() {
			invalid++
			continue
		}
		clean = append(clean, b)
	}
	sort.SliceStable(clean, func(i, j int) bool {
		return clean[i].Timestamp.Before(clean[j].Timestamp)
	})

	dedup := clean[:0]
	for _, b := range clean {
		if n := len(dedup); n > 0 && dedup[n-1].Timestamp.Equal(b.Timestamp) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}

	s := Series{Symbol: symbol, Timeframe: tf, Bars: dedup}
	s.Quality = AssessQuality(dedup, tf)
	s.Quality.InvalidRows = invalid
	return s
}

// Len devuelve el número de velas.
func (s Series) Len() int {
	return len(s.Bars)
}

// Between devuelve una copia de la serie limitada a [from, to].
func (s Series) Between(from, to time.Time) Series {
	lo := sort.Search(len(s.Bars), func(i int) bool { return !s.Bars[i].Timestamp.Before(from) })
	hi := sort.Search(len(s.Bars), func(i int) bool { return s.Bars[i].Timestamp.After(to) })
	if lo > hi {
		lo = hi
	}
	out := s
	out.Bars = append([]Bar(nil), s.Bars[lo:hi]...)
	return out
}

// IndexAtOrBefore devuelve el índice de la última vela con timestamp <= t, o -1.
func (s Series) IndexAtOrBefore(t time.Time) int {
	return sort.Search(len(s.Bars), func(i int) bool { return s.Bars[i].Timestamp.After(t) }) - 1
}

// PriceAt devuelve el cierre de la última vela en o antes de t, siempre que
// esté dentro de la tolerancia. Nunca mira velas posteriores a t.
func (s Series) PriceAt(t time.Time, tolerance time.Duration) (float64, int, bool) {
	i := s.IndexAtOrBefore(t)
	if i < 0 {
		return 0, -1, false
	}
	if t.Sub(s.Bars[i].Timestamp) > tolerance {
		return 0, i, false
	}
	return s.Bars[i].Close, i, true
}

// PricePoints convierte las primeras n velas en PricePoints.
func (s Series) PricePoints(n int) []PricePoint {
	n = min(n, len(s.Bars))
	out := make([]PricePoint, n)
	for i := range n {
		out[i] = PricePoint{Timestamp: s.Bars[i].Timestamp, Close: s.Bars[i].Close}
	}
	return out
}

// Closes devuelve los cierres de las velas [from, to).
func (s Series) Closes(from, to int) []float64 {
	from = max(from, 0)
	to = min(to, len(s.Bars))
	if from >= to {
		return nil
	}
	out := make([]float64, 0, to-from)
	for _, b := range s.Bars[from:to] {
		out = append(out, b.Close)
	}
	return out
}
