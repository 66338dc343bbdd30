package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/execsim/internal/adapters/storage"
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/alejandrodnm/execsim/internal/ports"
	"github.com/spf13/cobra"
)

func runsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored backtest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage(a)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			a.reporter.PrintRuns(runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list (0: all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Print a stored run (the ID may be a unique prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage(a)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := resolveRunID(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			run, err := store.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.reporter.PrintBacktest(run)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored run (the ID may be a unique prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage(a)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := resolveRunID(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			if err := store.DeleteRun(cmd.Context(), id); err != nil {
				return err
			}
			slog.Info("run deleted", "run_id", id)
			return nil
		},
	})
	return cmd
}

// resolveRunID expande un prefijo al ID completo. Un prefijo ambiguo es un error.
func resolveRunID(ctx context.Context, store ports.RunStorage, prefix string) (string, error) {
	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, r := range runs {
		if r.RunID == prefix {
			return prefix, nil
		}
		if strings.HasPrefix(r.RunID, prefix) {
			matches = append(matches, r.RunID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", domain.ErrRunNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous run ID prefix %q: %s", prefix, strings.Join(matches, ", "))
	}
}

// openStorage abre la base de datos de corridas configurada.
func openStorage(a *app) (ports.RunStorage, error) {
	store, err := storage.NewSQLiteStorage(a.cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	return store, nil
}
