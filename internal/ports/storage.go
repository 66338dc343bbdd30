package ports

import (
	"context"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// RunStorage persiste los resultados de los backtests (no las velas).
type RunStorage interface {
	// SaveRun guarda la corrida completa: resumen, trades y curva de equity.
	SaveRun(ctx context.Context, result domain.BacktestResult) error

	// GetRun devuelve una corrida por ID o domain.ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (domain.BacktestResult, error)

	// ListRuns devuelve los resúmenes más recientes primero.
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)

	// DeleteRun borra la corrida con sus trades y equity, o devuelve domain.ErrRunNotFound.
	DeleteRun(ctx context.Context, runID string) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
