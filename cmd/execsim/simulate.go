package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/execsim/internal/application/execution"
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/spf13/cobra"
)

func simulateCmd(a *app) *cobra.Command {
	var (
		symbol     string
		side       string
		orderType  string
		tif        string
		qty        float64
		price      float64
		limit      float64
		stop       float64
		volume     float64
		volatility float64
		seed       uint64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Execute a single order through the market simulator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := domain.ParseSide(side)
			if err != nil {
				return err
			}
			t, err := domain.ParseOrderType(orderType)
			if err != nil {
				return err
			}
			tf, err := domain.ParseTimeInForce(tif)
			if err != nil {
				return err
			}

			order := domain.OrderRequest{
				Timestamp:   time.Now().UTC(),
				Symbol:      strings.ToUpper(symbol),
				Side:        s,
				Type:        t,
				Quantity:    qty,
				TimeInForce: tf,
			}
			if cmd.Flags().Changed("limit") {
				order.LimitPrice = domain.Price(limit)
			}
			if cmd.Flags().Changed("stop") {
				order.StopPrice = domain.Price(stop)
			}

			if !cmd.Flags().Changed("seed") {
				seed = a.cfg.ExecutionSeed()
			}
			sim := execution.NewSimulator(a.cfg.SimulatorConfig(), execution.NewRandomSource(seed))
			res, err := sim.ExecuteOrder(order, price, volume, volatility)
			if err != nil {
				return fmt.Errorf("simulate: %w", err)
			}
			a.reporter.PrintExecution(res)
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSDT", "symbol")
	cmd.Flags().StringVar(&side, "side", "buy", "buy|sell")
	cmd.Flags().StringVar(&orderType, "type", "market", "market|limit|stop-loss")
	cmd.Flags().StringVar(&tif, "tif", "GTC", "time in force: GTC|IOC|FOK")
	cmd.Flags().Float64VarP(&qty, "qty", "q", 0.1, "order quantity")
	cmd.Flags().Float64VarP(&price, "price", "p", 50_000, "current market price")
	cmd.Flags().Float64Var(&limit, "limit", 0, "limit price (LIMIT orders)")
	cmd.Flags().Float64Var(&stop, "stop", 0, "stop price (STOP_LOSS orders)")
	cmd.Flags().Float64Var(&volume, "volume", 1_000_000_000, "24h volume in USD")
	cmd.Flags().Float64Var(&volatility, "volatility", 0.02, "recent volatility (fraction)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (default: execution.seed)")
	return cmd
}
