package files

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/bmatcuk/doublestar/v4"
)

// Provider lee velas de ficheros CSV bajo un directorio.
// Implementa ports.HistoricalDataProvider.
//
// Cada símbolo se busca con el glob **/{SYMBOL}*.csv; si el nombre del fichero
// lleva un timeframe (BTCUSDT_4h.csv) solo se usa cuando coincide con el pedido.
type Provider struct {
	dir string
}

// NewProvider crea un Provider sobre dir.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir}
}

// History implementa ports.HistoricalDataProvider. Junta todos los ficheros
// del símbolo, recorta a [start, end] y construye la serie.
func (p *Provider) History(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	paths, err := p.Files(symbol, tf)
	if err != nil {
		return domain.Series{}, fmt.Errorf("files.History: %w", err)
	}
	if len(paths) == 0 {
		return domain.Series{}, fmt.Errorf("files.History: %w: no csv files for %s under %s", domain.ErrNoData, symbol, p.dir)
	}

	var (
		bars    []domain.Bar
		invalid int
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return domain.Series{}, err
		}
		fileBars, skipped, err := readFile(path)
		if err != nil {
			return domain.Series{}, fmt.Errorf("files.History: %s: %w", path, err)
		}
		invalid += skipped
		for _, b := range fileBars {
			if b.Timestamp.Before(start) || b.Timestamp.After(end) {
				continue
			}
			bars = append(bars, b)
		}
	}

	s := domain.NewSeries(symbol, tf, bars)
	s.Quality.InvalidRows += invalid
	slog.Debug("csv series loaded",
		"symbol", symbol,
		"files", len(paths),
		"bars", s.Len(),
		"invalid_rows", s.Quality.InvalidRows,
	)
	return s, nil
}

// Files devuelve los CSV que corresponden al símbolo y timeframe, ordenados.
func (p *Provider) Files(symbol string, tf domain.Timeframe) ([]string, error) {
	pattern := filepath.Join(p.dir, "**", symbol+"*.csv")
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	out := matches[:0]
	for _, m := range matches {
		if matchesName(filepath.Base(m), symbol, tf) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// matchesName descarta BTCUSDTX.csv al pedir BTCUSDT y los ficheros marcados
// con otro timeframe.
func matchesName(base, symbol string, tf domain.Timeframe) bool {
	name := strings.TrimSuffix(base, filepath.Ext(base))
	rest, ok := strings.CutPrefix(strings.ToUpper(name), symbol)
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	if rest[0] != '_' && rest[0] != '-' && rest[0] != '.' {
		return false
	}
	for _, tok := range strings.FieldsFunc(rest, func(r rune) bool { return r == '_' || r == '-' || r == '.' }) {
		if parsed, err := domain.ParseTimeframe(tok); err == nil && parsed != tf {
			return false
		}
	}
	return true
}

// WriteSeries escribe la serie en dir/{SYMBOL}_{tf}.csv y devuelve la ruta.
func WriteSeries(dir string, s domain.Series) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("files.WriteSeries: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", s.Symbol, s.Timeframe))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("files.WriteSeries: %w", err)
	}
	if err := WriteBars(f, s.Bars); err != nil {
		f.Close()
		return "", fmt.Errorf("files.WriteSeries: %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("files.WriteSeries: %w", err)
	}
	return path, nil
}
