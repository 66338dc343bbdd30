package files

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Columnas esperadas. La cabecera es opcional: sin ella se asume este orden.
var defaultColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// Alias aceptados para la columna de tiempo.
var timestampAliases = map[string]bool{
	"timestamp": true,
	"time":      true,
	"open_time": true,
	"date":      true,
	"datetime":  true,
}

// millisThreshold separa epoch en segundos de epoch en milisegundos.
const millisThreshold = 1e11

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func readFile(path string) ([]domain.Bar, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadBars(f)
}

// ReadBars parsea un CSV OHLCV. Acepta UTF-8 con o sin BOM y UTF-16 con BOM.
// Devuelve las velas parseadas y cuántas filas se descartaron por no parsear.
func ReadBars(r io.Reader) ([]domain.Bar, int, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		bars    []domain.Bar
		skipped int
		index   map[string]int
		line    int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("read csv: %w", err)
		}
		line++
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}

		if index == nil {
			if idx, ok := headerIndex(rec); ok {
				index = idx
				continue
			}
			index, _ = headerIndex(defaultColumns)
		}

		b, err := parseRow(rec, index)
		if err != nil {
			skipped++
			slog.Debug("skipping csv row", "line", line, "error", err)
			continue
		}
		bars = append(bars, b)
	}
	return bars, skipped, nil
}

// headerIndex mapea las columnas OHLCV a su posición. ok es false si la fila
// no es una cabecera completa.
func headerIndex(rec []string) (map[string]int, bool) {
	idx := make(map[string]int, len(defaultColumns))
	for i, name := range rec {
		name = strings.ToLower(strings.TrimSpace(name))
		if timestampAliases[name] {
			name = "timestamp"
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	for _, col := range defaultColumns {
		if _, ok := idx[col]; !ok {
			return nil, false
		}
	}
	return idx, true
}

func parseRow(rec []string, index map[string]int) (domain.Bar, error) {
	field := func(col string) (string, error) {
		i := index[col]
		if i >= len(rec) {
			return "", fmt.Errorf("missing column %s", col)
		}
		return strings.TrimSpace(rec[i]), nil
	}

	raw, err := field("timestamp")
	if err != nil {
		return domain.Bar{}, err
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return domain.Bar{}, err
	}

	var vals [5]float64
	for i, col := range defaultColumns[1:] {
		s, err := field(col)
		if err != nil {
			return domain.Bar{}, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("%s %q: %w", col, s, err)
		}
		vals[i] = v
	}
	return domain.Bar{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

// ParseTimestamp acepta epoch en segundos o milisegundos y fechas RFC3339
// o "2006-01-02 15:04:05". Sin zona se asume UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > millisThreshold || n < -millisThreshold {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f > millisThreshold || f < -millisThreshold {
			return time.UnixMilli(int64(f)).UTC(), nil
		}
		return time.Unix(0, int64(f*float64(time.Second))).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// formatFloat usa la representación más corta que vuelve a parsear al mismo float64.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteBars escribe las velas con cabecera y timestamps RFC3339.
func WriteBars(w io.Writer, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(defaultColumns); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
