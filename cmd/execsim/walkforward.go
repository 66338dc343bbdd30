package main

import (
	"log/slog"

	"github.com/alejandrodnm/execsim/internal/application/walkforward"
	"github.com/spf13/cobra"
)

func walkForwardCmd(a *app) *cobra.Command {
	var (
		flags   runFlags
		save    bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "walkforward",
		Short: "Optimize on rolling train windows and validate out of sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, a); err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg := a.cfg
			if err := cfg.Backtest.Validate(); err != nil {
				return err
			}

			data, closeData, err := newProvider(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeData()

			strat, err := newStrategy(cfg)
			if err != nil {
				return err
			}

			// la carga y el filtro de calidad se hacen una sola vez para todas las ventanas
			loader := newEngine(cfg, data, strat, cfg.WalkForward.Seed)
			series, excluded, err := loader.Load(ctx, cfg.Backtest)
			if err != nil {
				return err
			}
			if len(excluded) > 0 {
				slog.Warn("symbols excluded from walk-forward", "symbols", excluded)
			}

			opt := walkforward.NewOptimizer(func(seed uint64) walkforward.Replayer {
				return newEngine(cfg, data, strat, seed)
			}, cfg.WalkForward.Seed)
			opt.Splitter = cfg.WalkForward.Splitter
			opt.Grid = cfg.WalkForward.Grid
			if cfg.WalkForward.Workers > 0 {
				opt.Workers = cfg.WalkForward.Workers
			}
			if cmd.Flags().Changed("workers") {
				opt.Workers = workers
			}
			if cfg.WalkForward.MinTrainBars > 0 {
				opt.MinTrainBars = cfg.WalkForward.MinTrainBars
			}
			if cfg.WalkForward.MinTestBars > 0 {
				opt.MinTestBars = cfg.WalkForward.MinTestBars
			}
			opt.Simulations = cfg.WalkForward.Bootstrap.Simulations
			if cfg.WalkForward.Bootstrap.BlockSize > 0 {
				opt.BlockSize = cfg.WalkForward.Bootstrap.BlockSize
			}
			if cfg.WalkForward.Alpha > 0 {
				opt.Alpha = cfg.WalkForward.Alpha
			}

			report, err := opt.Run(ctx, cfg.Backtest, series)
			if err != nil {
				return err
			}
			report.Final.Excluded = append(excluded, report.Final.Excluded...)
			a.reporter.PrintWalkForward(report)

			if !save {
				return nil
			}
			store, err := openStorage(a)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SaveRun(ctx, report.Final); err != nil {
				return err
			}
			slog.Info("final run saved", "run_id", report.Final.RunID, "dsn", cfg.Storage.DSN)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&save, "save", false, "persist the final best-params run")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel grid workers (default: config or NumCPU)")
	return cmd
}
