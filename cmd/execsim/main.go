package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/execsim/config"
	"github.com/alejandrodnm/execsim/internal/adapters/notify"
	"github.com/alejandrodnm/execsim/internal/ports"
	"github.com/spf13/cobra"
)

// app agrupa el estado compartido por los subcomandos tras PersistentPreRunE.
type app struct {
	configPath string
	verbose    bool
	format     string

	cfg         *config.Config
	reporter    ports.Reporter
	closeLogger func() error
}

func main() {
	a := &app{}
	root := newRootCmd(a)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "execsim",
		Short: "Backtesting with realistic order execution",
		Long: `execsim replays historical OHLCV bars against a trading strategy and routes
every entry and exit through a market simulator with latency, slippage,
partial fills and fees.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closeLogger != nil {
				_ = a.closeLogger()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config/config.yaml", "path to config file (empty: defaults only)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "set log level to debug")
	root.PersistentFlags().StringVar(&a.format, "format", "table", "output format: table|compact")

	root.AddCommand(backtestCmd(a))
	root.AddCommand(walkForwardCmd(a))
	root.AddCommand(runsCmd(a))
	root.AddCommand(generateCmd(a))
	root.AddCommand(simulateCmd(a))

	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}

	closeLogger, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.closeLogger = closeLogger

	switch a.format {
	case "table":
		a.reporter = notify.NewConsoleWriter(cmd.OutOrStdout(), true)
	case "compact":
		a.reporter = notify.NewConsoleWriter(cmd.OutOrStdout(), false)
	default:
		return fmt.Errorf("unknown --format %q (want table|compact)", a.format)
	}

	slog.Debug("execsim starting",
		"command", cmd.Name(),
		"config", a.configPath,
		"provider", cfg.Data.Provider,
		"storage", cfg.Storage.DSN,
	)
	return nil
}
