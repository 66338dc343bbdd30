package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/execsim/config"
	"github.com/alejandrodnm/execsim/internal/adapters/binance"
	"github.com/alejandrodnm/execsim/internal/adapters/clickhouse"
	"github.com/alejandrodnm/execsim/internal/adapters/files"
	"github.com/alejandrodnm/execsim/internal/adapters/synthetic"
	"github.com/alejandrodnm/execsim/internal/application/backtest"
	"github.com/alejandrodnm/execsim/internal/application/execution"
	"github.com/alejandrodnm/execsim/internal/ports"
	"github.com/alejandrodnm/execsim/internal/strategy"
)

// newProvider construye el proveedor de velas configurado. El closer
// devuelto es no-op salvo para ClickHouse.
func newProvider(ctx context.Context, cfg *config.Config) (ports.HistoricalDataProvider, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Data.Provider {
	case "csv":
		return files.NewProvider(cfg.Data.Dir), noop, nil
	case "binance":
		return binance.NewClient(cfg.Data.BinanceURL), noop, nil
	case "clickhouse":
		p, err := clickhouse.Open(ctx, cfg.Data.ClickHouseDSN, cfg.Data.ClickHouseTable)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "synthetic":
		params := cfg.Data.Synthetic
		if params.Start.IsZero() {
			params.Start = cfg.Backtest.Start
		}
		params.Timeframe = cfg.Backtest.Timeframe
		slog.Info("generating synthetic market",
			"symbols", len(cfg.Backtest.Symbols),
			"bars", params.Bars,
			"seed", params.Seed,
		)
		return synthetic.NewProvider(synthetic.GenerateUniverse(cfg.Backtest.Symbols, params)), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown data provider %q (want csv|binance|clickhouse|synthetic)", cfg.Data.Provider)
	}
}

// newStrategy devuelve el script Starlark si está configurado, o la
// estrategia registrada con ese nombre.
func newStrategy(cfg *config.Config) (ports.Strategy, error) {
	if cfg.Strategy.Script != "" {
		s, err := strategy.LoadScript(cfg.Strategy.Script)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return strategy.NewDefaultRegistry().Lookup(cfg.Strategy.Name)
}

// newEngine crea un motor de backtest con su propia fuente aleatoria.
func newEngine(cfg *config.Config, data ports.HistoricalDataProvider, strat ports.Strategy, seed uint64) *backtest.Engine {
	return backtest.New(data, strat, backtest.Options{
		Execution:    cfg.SimulatorConfig(),
		Random:       execution.NewRandomSource(seed),
		RiskFreeRate: cfg.Execution.RiskFreeRate,
	})
}
