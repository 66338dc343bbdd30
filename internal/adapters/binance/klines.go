package binance

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// klinesPageLimit es el máximo de velas por request que acepta Binance.
const klinesPageLimit = 1000

// History implementa ports.HistoricalDataProvider.
// Pagina /api/v3/klines de a 1000 velas hasta cubrir [start, end].
func (c *Client) History(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	interval := tf.Duration()
	if interval <= 0 {
		return domain.Series{}, fmt.Errorf("binance.History: %w: %q", domain.ErrUnknownTimeframe, tf)
	}

	var bars []domain.Bar
	endMs := end.UnixMilli()
	cursor := start.UnixMilli()
	pages := 0
	for cursor <= endMs {
		page, err := c.fetchKlines(ctx, symbol, tf, cursor, endMs)
		if err != nil {
			return domain.Series{}, fmt.Errorf("binance.History: %s: %w", symbol, err)
		}
		pages++
		if len(page) == 0 {
			break
		}

		for _, r := range page {
			b, err := mapKline(r)
			if err != nil {
				return domain.Series{}, fmt.Errorf("binance.History: %s: %w", symbol, err)
			}
			bars = append(bars, b)
		}

		last, err := openTimeMs(page[len(page)-1])
		if err != nil {
			return domain.Series{}, fmt.Errorf("binance.History: %s: %w", symbol, err)
		}
		if len(page) < klinesPageLimit {
			break
		}
		cursor = last + interval.Milliseconds()
	}

	slog.Debug("klines fetched", "symbol", symbol, "timeframe", tf, "bars", len(bars), "pages", pages)
	return domain.NewSeries(symbol, tf, bars), nil
}

// fetchKlines obtiene una página de velas desde startMs (inclusive).
func (c *Client) fetchKlines(ctx context.Context, symbol string, tf domain.Timeframe, startMs, endMs int64) ([]rawKline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(tf))
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	q.Set("endTime", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(klinesPageLimit))

	var page []rawKline
	if err := c.get(ctx, c.baseURL+"/api/v3/klines?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	return page, nil
}
