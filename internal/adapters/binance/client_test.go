package binance_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/execsim/internal/adapters/binance"
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// klines genera n filas horarias desde startMs en el formato de la API.
func klines(startMs int64, n int) string {
	rows := make([]string, n)
	for i := range n {
		open := startMs + int64(i)*time.Hour.Milliseconds()
		rows[i] = fmt.Sprintf(`[%d,"100.10","101.00","99.50","100.%02d","12.5",%d,"1250.0",42,"6.0","600.0","0"]`,
			open, i%100, open+time.Hour.Milliseconds()-1)
	}
	return "[" + strings.Join(rows, ",") + "]"
}

func TestHistory_SinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Equal(t, strconv.FormatInt(t0.UnixMilli(), 10), r.URL.Query().Get("startTime"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, klines(t0.UnixMilli(), 3))
	}))
	defer srv.Close()

	s, err := binance.NewClient(srv.URL).History(context.Background(), "btcusdt", domain.Timeframe1h, t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, "BTCUSDT", s.Symbol)

	b := s.Bars[1]
	assert.Equal(t, t0.Add(time.Hour), b.Timestamp)
	assert.InDelta(t, 100.10, b.Open, 1e-12)
	assert.InDelta(t, 101.00, b.High, 1e-12)
	assert.InDelta(t, 99.50, b.Low, 1e-12)
	assert.InDelta(t, 100.01, b.Close, 1e-12)
	assert.InDelta(t, 12.5, b.Volume, 1e-12)
	assert.InDelta(t, 1.0, s.Quality.Completeness, 1e-12)
}

func TestHistory_Paginates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, err := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		require.NoError(t, err)
		switch calls.Add(1) {
		case 1:
			assert.Equal(t, t0.UnixMilli(), start)
			fmt.Fprint(w, klines(start, 1000))
		case 2:
			assert.Equal(t, t0.Add(1000*time.Hour).UnixMilli(), start)
			fmt.Fprint(w, klines(start, 200))
		default:
			t.Errorf("unexpected request %d", calls.Load())
			fmt.Fprint(w, "[]")
		}
	}))
	defer srv.Close()

	s, err := binance.NewClient(srv.URL).History(context.Background(), "ETHUSDT", domain.Timeframe1h, t0, t0.Add(1500*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1200, s.Len())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, t0.Add(1199*time.Hour), s.Bars[s.Len()-1].Timestamp)
}

func TestHistory_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, klines(t0.UnixMilli(), 2))
	}))
	defer srv.Close()

	s, err := binance.NewClient(srv.URL).History(context.Background(), "BTCUSDT", domain.Timeframe1h, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, int32(2), calls.Load())
}

func TestHistory_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer srv.Close()

	_, err := binance.NewClient(srv.URL).History(context.Background(), "NOPE", domain.Timeframe1h, t0, t0.Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol.")
	assert.Contains(t, err.Error(), "-1121")
}

func TestHistory_MalformedKline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[[%d,"abc","1","1","1","1",0]]`, t0.UnixMilli())
	}))
	defer srv.Close()

	_, err := binance.NewClient(srv.URL).History(context.Background(), "BTCUSDT", domain.Timeframe1h, t0, t0.Add(time.Hour))
	require.Error(t, err)
}

func TestHistory_UnknownTimeframe(t *testing.T) {
	_, err := binance.NewClient("http://unused").History(context.Background(), "BTCUSDT", domain.Timeframe("7m"), t0, t0.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrUnknownTimeframe)
}

func TestHistory_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := binance.NewClient(srv.URL).History(ctx, "BTCUSDT", domain.Timeframe1h, t0, t0.Add(time.Hour))
	require.ErrorIs(t, err, context.Canceled)
}
