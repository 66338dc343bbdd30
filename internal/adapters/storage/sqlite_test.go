package storage_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/execsim/internal/adapters/storage"
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/alejandrodnm/execsim/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.RunStorage = (*storage.SQLiteStorage)(nil)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeResult(id string, createdAt time.Time, sharpe float64) domain.BacktestResult {
	cfg := domain.DefaultBacktestConfig(t0, t0.Add(72*time.Hour), 10_000, []string{"BTCUSDT", "ETHUSDT"})
	return domain.BacktestResult{
		RunID:    id,
		Strategy: "correlation_breakdown",
		Config:   cfg,
		Trades: []domain.Trade{
			{
				ID: "t1", EntryTime: t0.Add(50 * time.Hour), ExitTime: t0.Add(55 * time.Hour),
				Symbol: "BTCUSDT", Side: domain.Long, EntryPrice: 100, ExitPrice: 104,
				Quantity: 2, PnL: 7.6, PnLPct: 0.038, Fees: 0.4, DurationHours: 5,
				ExitReason: domain.ExitTakeProfit,
			},
			{
				ID: "t2", EntryTime: t0.Add(60 * time.Hour), ExitTime: t0.Add(72 * time.Hour),
				Symbol: "ETHUSDT", Side: domain.Short, EntryPrice: 50, ExitPrice: 51,
				Quantity: 1, PnL: -1.1, PnLPct: -0.022, Fees: 0.1, DurationHours: 12,
				ExitReason: domain.ExitEndOfData,
			},
		},
		EquityCurve: []domain.EquityPoint{
			{Timestamp: t0, Value: 10_000},
			{Timestamp: t0.Add(time.Hour), Value: 10_006.5},
		},
		Metrics: domain.PerformanceMetrics{
			TotalReturn:  0.00065,
			SharpeRatio:  sharpe,
			SortinoRatio: math.Inf(1),
			ProfitFactor: math.Inf(1),
			MaxDrawdown:  -0.01,
			TotalTrades:  2,
			PValue:       0.4,
		},
		ExecutionStats: domain.NewExecutionStats(4, 3, 1, 0),
		Excluded:       []string{"DOGEUSDT"},
		SkippedTicks:   3,
		StartedAt:      createdAt,
		Duration:       1500 * time.Millisecond,
	}
}

func TestSQLiteStorage_SaveAndGetRun(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	want := makeResult("run-1", t0.Add(100*time.Hour), 1.25)

	require.NoError(t, db.SaveRun(ctx, want))

	got, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Strategy, got.Strategy)
	assert.Equal(t, want.Config, got.Config)
	assert.Equal(t, want.Trades, got.Trades)
	assert.Equal(t, want.EquityCurve, got.EquityCurve)
	assert.Equal(t, want.ExecutionStats, got.ExecutionStats)
	assert.Equal(t, want.Excluded, got.Excluded)
	assert.Equal(t, 3, got.SkippedTicks)
	assert.Equal(t, want.StartedAt, got.StartedAt)
	assert.Equal(t, want.Duration, got.Duration)

	assert.Equal(t, 1.25, got.Metrics.SharpeRatio)
	assert.True(t, math.IsInf(got.Metrics.ProfitFactor, 1), "infinite profit factor survives the round trip")
	assert.Equal(t, 2, got.Metrics.TotalTrades)
}

func TestSQLiteStorage_GetRun_NotFound(t *testing.T) {
	db := newDB(t)
	_, err := db.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestSQLiteStorage_SaveRun_Rejects(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	require.Error(t, db.SaveRun(ctx, makeResult("", t0, 1)))

	require.NoError(t, db.SaveRun(ctx, makeResult("dup", t0, 1)))
	require.Error(t, db.SaveRun(ctx, makeResult("dup", t0, 2)), "run ids are unique")

	// el segundo intento no dejó filas sueltas
	got, err := db.GetRun(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, got.Trades, 2)
	assert.Equal(t, 1.0, got.Metrics.SharpeRatio)
}

func TestSQLiteStorage_ListRuns(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, db.SaveRun(ctx, makeResult(fmt.Sprintf("run-%d", i), t0.Add(time.Duration(i)*time.Hour), float64(i))))
	}

	runs, err := db.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID, "most recent first")
	assert.Equal(t, "run-1", runs[1].RunID)

	r := runs[0]
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, r.Symbols)
	assert.Equal(t, t0.Add(2*time.Hour), r.CreatedAt)
	assert.Equal(t, t0, r.Start)
	assert.Equal(t, t0.Add(72*time.Hour), r.End)
	assert.Equal(t, 10_006.5, r.FinalEquity)
	assert.Equal(t, 2, r.TotalTrades)
	assert.Equal(t, 2.0, r.SharpeRatio)

	all, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStorage_ListRuns_Empty(t *testing.T) {
	runs, err := newDB(t).ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSQLiteStorage_DeleteRun(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveRun(ctx, makeResult("gone", t0, 1)))

	require.NoError(t, db.DeleteRun(ctx, "gone"))
	_, err := db.GetRun(ctx, "gone")
	require.ErrorIs(t, err, domain.ErrRunNotFound)
	require.ErrorIs(t, db.DeleteRun(ctx, "gone"), domain.ErrRunNotFound)

	// se puede volver a guardar con el mismo id: no quedaron trades huérfanos
	require.NoError(t, db.SaveRun(ctx, makeResult("gone", t0, 1)))
	got, err := db.GetRun(ctx, "gone")
	require.NoError(t, err)
	assert.Len(t, got.Trades, 2)
}
