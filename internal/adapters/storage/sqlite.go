package storage

// sqlite.go — persistencia de corridas de backtest (no de velas).
//
//   - `runs`: una fila por corrida con las columnas de listado y un payload
//     YAML con config, métricas y stats de ejecución.
//   - `run_trades` y `run_equity`: detalle ordenado por seq.
//   - Los timestamps se guardan como unix nanos para no depender del formato
//     de fecha del driver.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id          TEXT PRIMARY KEY,
    strategy        TEXT    NOT NULL,
    created_at      INTEGER NOT NULL,
    start_at        INTEGER NOT NULL,
    end_at          INTEGER NOT NULL,
    symbols         TEXT    NOT NULL,
    initial_capital REAL    NOT NULL DEFAULT 0,
    final_equity    REAL    NOT NULL DEFAULT 0,
    total_return    REAL    NOT NULL DEFAULT 0,
    sharpe          REAL    NOT NULL DEFAULT 0,
    max_drawdown    REAL    NOT NULL DEFAULT 0,
    total_trades    INTEGER NOT NULL DEFAULT 0,
    duration_ms     INTEGER NOT NULL DEFAULT 0,
    payload         TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS run_trades (
    run_id         TEXT    NOT NULL,
    seq            INTEGER NOT NULL,
    trade_id       TEXT    NOT NULL,
    symbol         TEXT    NOT NULL,
    side           TEXT    NOT NULL,
    entry_time     INTEGER NOT NULL,
    exit_time      INTEGER NOT NULL,
    entry_price    REAL    NOT NULL,
    exit_price     REAL    NOT NULL,
    quantity       REAL    NOT NULL,
    pnl            REAL    NOT NULL,
    pnl_pct        REAL    NOT NULL,
    fees           REAL    NOT NULL,
    duration_hours REAL    NOT NULL,
    exit_reason    TEXT    NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS run_equity (
    run_id TEXT    NOT NULL,
    seq    INTEGER NOT NULL,
    ts     INTEGER NOT NULL,
    value  REAL    NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
`

// runPayload es lo que va serializado en runs.payload.
type runPayload struct {
	Config         domain.BacktestConfig     `yaml:"config"`
	Metrics        domain.PerformanceMetrics `yaml:"metrics"`
	ExecutionStats domain.ExecutionStats     `yaml:"execution_stats"`
	Excluded       []string                  `yaml:"excluded,omitempty"`
	SkippedTicks   int                       `yaml:"skipped_ticks"`
}

// SQLiteStorage implementa ports.RunStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// SaveRun persiste la corrida completa en una sola transacción.
func (s *SQLiteStorage) SaveRun(ctx context.Context, result domain.BacktestResult) error {
	if result.RunID == "" {
		return fmt.Errorf("storage.SaveRun: empty run id")
	}
	payload, err := yaml.Marshal(runPayload{
		Config:         result.Config,
		Metrics:        result.Metrics,
		ExecutionStats: result.ExecutionStats,
		Excluded:       result.Excluded,
		SkippedTicks:   result.SkippedTicks,
	})
	if err != nil {
		return fmt.Errorf("storage.SaveRun: encode payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	sum := result.Summary()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs
			(run_id, strategy, created_at, start_at, end_at, symbols, initial_capital,
			 final_equity, total_return, sharpe, max_drawdown, total_trades, duration_ms, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID,
		sum.Strategy,
		nanos(sum.CreatedAt),
		nanos(sum.Start),
		nanos(sum.End),
		strings.Join(sum.Symbols, ","),
		finite(sum.InitialCapital),
		finite(sum.FinalEquity),
		finite(sum.TotalReturn),
		finite(sum.SharpeRatio),
		finite(sum.MaxDrawdown),
		sum.TotalTrades,
		result.Duration.Milliseconds(),
		string(payload),
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert run %s: %w", result.RunID, err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades
			(run_id, seq, trade_id, symbol, side, entry_time, exit_time, entry_price, exit_price,
			 quantity, pnl, pnl_pct, fees, duration_hours, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare trades: %w", err)
	}
	defer tradeStmt.Close()

	for i, t := range result.Trades {
		if _, err := tradeStmt.ExecContext(ctx,
			result.RunID, i, t.ID, t.Symbol, string(t.Side),
			nanos(t.EntryTime), nanos(t.ExitTime),
			t.EntryPrice, t.ExitPrice, t.Quantity,
			finite(t.PnL), finite(t.PnLPct), t.Fees, t.DurationHours,
			string(t.ExitReason),
		); err != nil {
			return fmt.Errorf("storage.SaveRun: insert trade %d: %w", i, err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_equity (run_id, seq, ts, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare equity: %w", err)
	}
	defer equityStmt.Close()

	for i, p := range result.EquityCurve {
		if _, err := equityStmt.ExecContext(ctx, result.RunID, i, nanos(p.Timestamp), finite(p.Value)); err != nil {
			return fmt.Errorf("storage.SaveRun: insert equity %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return nil
}

// GetRun devuelve la corrida completa o domain.ErrRunNotFound.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (domain.BacktestResult, error) {
	var (
		res        domain.BacktestResult
		createdAt  int64
		durationMs int64
		payload    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, strategy, created_at, duration_ms, payload FROM runs WHERE run_id = ?`, runID,
	).Scan(&res.RunID, &res.Strategy, &createdAt, &durationMs, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BacktestResult{}, fmt.Errorf("storage.GetRun: %w: %s", domain.ErrRunNotFound, runID)
	}
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("storage.GetRun: query run: %w", err)
	}

	var p runPayload
	if err := yaml.Unmarshal([]byte(payload), &p); err != nil {
		return domain.BacktestResult{}, fmt.Errorf("storage.GetRun: decode payload: %w", err)
	}
	res.Config = p.Config
	res.Metrics = p.Metrics
	res.ExecutionStats = p.ExecutionStats
	res.Excluded = p.Excluded
	res.SkippedTicks = p.SkippedTicks
	res.StartedAt = fromNanos(createdAt)
	res.Duration = time.Duration(durationMs) * time.Millisecond

	if res.Trades, err = s.trades(ctx, runID); err != nil {
		return domain.BacktestResult{}, fmt.Errorf("storage.GetRun: %w", err)
	}
	if res.EquityCurve, err = s.equity(ctx, runID); err != nil {
		return domain.BacktestResult{}, fmt.Errorf("storage.GetRun: %w", err)
	}
	return res, nil
}

func (s *SQLiteStorage) trades(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, symbol, side, entry_time, exit_time, entry_price, exit_price,
		       quantity, pnl, pnl_pct, fees, duration_hours, exit_reason
		FROM run_trades
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			t                   domain.Trade
			side, reason        string
			entryTime, exitTime int64
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &entryTime, &exitTime, &t.EntryPrice, &t.ExitPrice,
			&t.Quantity, &t.PnL, &t.PnLPct, &t.Fees, &t.DurationHours, &reason); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = domain.PositionSide(side)
		t.ExitReason = domain.ExitReason(reason)
		t.EntryTime = fromNanos(entryTime)
		t.ExitTime = fromNanos(exitTime)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) equity(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, value FROM run_equity WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query equity: %w", err)
	}
	defer rows.Close()

	var out []domain.EquityPoint
	for rows.Next() {
		var (
			ts    int64
			value float64
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("scan equity: %w", err)
		}
		out = append(out, domain.EquityPoint{Timestamp: fromNanos(ts), Value: value})
	}
	return out, rows.Err()
}

// ListRuns devuelve los resúmenes más recientes primero. limit <= 0 devuelve todos.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = -1 // sin límite en SQLite
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, strategy, created_at, start_at, end_at, symbols, initial_capital,
		       final_equity, total_return, sharpe, max_drawdown, total_trades
		FROM runs
		ORDER BY created_at DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRuns: query: %w", err)
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var (
			r                         domain.RunSummary
			createdAt, startAt, endAt int64
			symbols                   string
		)
		if err := rows.Scan(&r.RunID, &r.Strategy, &createdAt, &startAt, &endAt, &symbols, &r.InitialCapital,
			&r.FinalEquity, &r.TotalReturn, &r.SharpeRatio, &r.MaxDrawdown, &r.TotalTrades); err != nil {
			return nil, fmt.Errorf("storage.ListRuns: scan row: %w", err)
		}
		r.CreatedAt = fromNanos(createdAt)
		r.Start = fromNanos(startAt)
		r.End = fromNanos(endAt)
		if symbols != "" {
			r.Symbols = strings.Split(symbols, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun borra una corrida con su detalle. domain.ErrRunNotFound si no existe.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.DeleteRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("storage.DeleteRun: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.DeleteRun: %w: %s", domain.ErrRunNotFound, runID)
	}
	for _, table := range []string{"run_trades", "run_equity"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("storage.DeleteRun: %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.DeleteRun: commit: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// finite evita NaN, que SQLite guarda como NULL y rompe el Scan.
func finite(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
