package synthetic

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
)

// Provider sirve series en memoria. Implementa ports.HistoricalDataProvider.
type Provider struct {
	series map[string]domain.Series
}

// NewProvider crea un Provider con las series dadas, indexadas por símbolo.
func NewProvider(series map[string]domain.Series) *Provider {
	return &Provider{series: series}
}

// History implementa ports.HistoricalDataProvider.
func (p *Provider) History(_ context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.Series, error) {
	s, ok := p.series[symbol]
	if !ok {
		return domain.Series{}, fmt.Errorf("synthetic.History: %w: unknown symbol %s", domain.ErrNoData, symbol)
	}
	if s.Timeframe != tf {
		return domain.Series{}, fmt.Errorf("synthetic.History: %s is %s, requested %s", symbol, s.Timeframe, tf)
	}
	between := s.Between(start, end)
	return domain.NewSeries(symbol, tf, between.Bars), nil
}
