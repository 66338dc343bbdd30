package main

import (
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/execsim/internal/adapters/files"
	"github.com/alejandrodnm/execsim/internal/adapters/synthetic"
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/spf13/cobra"
)

func generateCmd(a *app) *cobra.Command {
	var (
		out       string
		symbols   []string
		start     string
		timeframe string
		bars      int
		seed      uint64
		breakAt   int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic correlated market as CSV files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := a.cfg.Data.Synthetic
			if params.Start.IsZero() {
				params.Start = a.cfg.Backtest.Start
			}
			if start != "" {
				t, err := files.ParseTimestamp(start)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				params.Start = t
			}
			if timeframe != "" {
				tf, err := domain.ParseTimeframe(timeframe)
				if err != nil {
					return fmt.Errorf("--timeframe: %w", err)
				}
				params.Timeframe = tf
			}
			if cmd.Flags().Changed("bars") {
				params.Bars = bars
			}
			if cmd.Flags().Changed("seed") {
				params.Seed = seed
			}
			if cmd.Flags().Changed("break-at") {
				params.BreakAt = breakAt
			}
			if len(symbols) == 0 {
				symbols = a.cfg.Backtest.Symbols
			}
			if len(symbols) == 0 {
				return fmt.Errorf("no symbols: pass --symbols or set backtest.symbols")
			}
			if out == "" {
				out = a.cfg.Data.Dir
			}

			universe := synthetic.GenerateUniverse(symbols, params)
			for _, sym := range symbols {
				path, err := files.WriteSeries(out, universe[sym])
				if err != nil {
					return err
				}
				slog.Info("series written", "symbol", sym, "bars", universe[sym].Len(), "path", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d symbols × %d bars in %s\n", len(symbols), params.Bars, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default: data.dir)")
	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "comma separated symbols (default: backtest.symbols)")
	cmd.Flags().StringVar(&start, "start", "", "first bar open time")
	cmd.Flags().StringVar(&timeframe, "timeframe", "", "bar timeframe")
	cmd.Flags().IntVar(&bars, "bars", 0, "bars per symbol")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().IntVar(&breakAt, "break-at", 0, "bar index where odd symbols decorrelate (0: never)")
	return cmd
}
