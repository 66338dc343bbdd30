package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// HistoricalDataProvider obtiene velas históricas de un símbolo.
type HistoricalDataProvider interface {
	// History devuelve las velas en [start, end] ya ordenadas, deduplicadas y
	// con su informe de calidad (ver domain.NewSeries).
	History(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.Series, error)
}
