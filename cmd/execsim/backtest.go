package main

import (
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/execsim/internal/adapters/files"
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/spf13/cobra"
)

// runFlags son los flags comunes a backtest y walkforward que sobreescriben
// la sección backtest del config.
type runFlags struct {
	start     string
	end       string
	symbols   []string
	capital   float64
	timeframe string
	provider  string
	strategy  string
	script    string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "start of the range (RFC3339, date or epoch)")
	cmd.Flags().StringVar(&f.end, "end", "", "end of the range (RFC3339, date or epoch)")
	cmd.Flags().StringSliceVarP(&f.symbols, "symbols", "s", nil, "comma separated symbols, e.g. BTCUSDT,ETHUSDT")
	cmd.Flags().Float64Var(&f.capital, "capital", 0, "initial capital in USD")
	cmd.Flags().StringVar(&f.timeframe, "timeframe", "", "bar timeframe (1m|5m|15m|30m|1h|4h|1d)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "data provider: csv|binance|clickhouse|synthetic")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "registered strategy name")
	cmd.Flags().StringVar(&f.script, "script", "", "path to a Starlark strategy script")
}

// apply copia al config solo los flags que se han pasado.
func (f *runFlags) apply(cmd *cobra.Command, a *app) error {
	cfg := a.cfg
	if cmd.Flags().Changed("start") {
		t, err := files.ParseTimestamp(f.start)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		cfg.Backtest.Start = t
	}
	if cmd.Flags().Changed("end") {
		t, err := files.ParseTimestamp(f.end)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
		cfg.Backtest.End = t
	}
	if cmd.Flags().Changed("symbols") {
		cfg.Backtest.Symbols = f.symbols
	}
	if cmd.Flags().Changed("capital") {
		cfg.Backtest.InitialCapital = f.capital
	}
	if cmd.Flags().Changed("timeframe") {
		tf, err := domain.ParseTimeframe(f.timeframe)
		if err != nil {
			return fmt.Errorf("--timeframe: %w", err)
		}
		cfg.Backtest.Timeframe = tf
	}
	if f.provider != "" {
		cfg.Data.Provider = f.provider
	}
	if f.strategy != "" {
		cfg.Strategy.Name = f.strategy
		cfg.Strategy.Script = ""
	}
	if f.script != "" {
		cfg.Strategy.Script = f.script
	}
	return nil
}

func backtestCmd(a *app) *cobra.Command {
	var (
		flags runFlags
		save  bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a single backtest over the configured range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, a); err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg := a.cfg

			data, closeData, err := newProvider(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeData()

			strat, err := newStrategy(cfg)
			if err != nil {
				return err
			}

			slog.Info("backtest starting",
				"strategy", strat.Name(),
				"symbols", cfg.Backtest.Symbols,
				"timeframe", cfg.Backtest.Timeframe,
				"provider", cfg.Data.Provider,
			)
			result, err := newEngine(cfg, data, strat, cfg.ExecutionSeed()).Run(ctx, cfg.Backtest)
			if err != nil {
				return err
			}
			a.reporter.PrintBacktest(result)

			if !save {
				return nil
			}
			store, err := openStorage(a)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SaveRun(ctx, result); err != nil {
				return err
			}
			slog.Info("run saved", "run_id", result.RunID, "dsn", cfg.Storage.DSN)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&save, "save", false, "persist the run in the storage database")
	return cmd
}
