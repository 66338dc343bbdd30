package notify

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// maxTradeRows limita la tabla de trades en el reporte de backtest.
const maxTradeRows = 20

// Console implementa ports.Reporter.
// En modo tabla imprime tablas completas; en modo compacto, una línea por resultado.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un reporter sobre un writer arbitrario (tests, ficheros).
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// PrintBacktest imprime el resumen de una corrida.
func (c *Console) PrintBacktest(r domain.BacktestResult) {
	m := r.Metrics
	if !c.table {
		fmt.Fprintf(c.out, "[%s] %s %s → %s | equity $%.2f (%s) | sharpe %s | dd %s | trades %d | win %s\n",
			shortID(r.RunID), r.Strategy,
			r.Config.Start.Format("2006-01-02"), r.Config.End.Format("2006-01-02"),
			r.FinalEquity(), pctLabel(m.TotalReturn), ratio(m.SharpeRatio),
			pctLabel(m.MaxDrawdown), m.TotalTrades, pctLabel(m.WinRate))
		return
	}

	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║  BACKTEST — %-53s║\n", truncate(r.Strategy+" "+shortID(r.RunID), 53))
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════════╝\n\n")

	fmt.Fprintf(c.out, "  Period:     %s → %s (%s)\n",
		r.Config.Start.Format(time.RFC3339), r.Config.End.Format(time.RFC3339), r.Config.Timeframe)
	fmt.Fprintf(c.out, "  Symbols:    %s\n", strings.Join(r.Config.Symbols, ", "))
	if len(r.Excluded) > 0 {
		fmt.Fprintf(c.out, "  Excluded:   %s\n", strings.Join(r.Excluded, ", "))
	}
	fmt.Fprintf(c.out, "  Capital:    $%.2f → $%.2f\n", r.Config.InitialCapital, r.FinalEquity())
	if r.SkippedTicks > 0 {
		fmt.Fprintf(c.out, "  Skipped:    %d ticks without 2 priced symbols\n", r.SkippedTicks)
	}
	fmt.Fprintln(c.out)

	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value", "Metric", "Value")
	rows := [][]string{
		{"Total return", pctLabel(m.TotalReturn), "Max drawdown", pctLabel(m.MaxDrawdown)},
		{"Annualized", pctLabel(m.AnnualizedReturn), "DD duration", fmt.Sprintf("%.1fd", m.MaxDrawdownDurationDays)},
		{"Volatility", pctLabel(m.Volatility), "Avg drawdown", pctLabel(m.AvgDrawdown)},
		{"Sharpe", ratio(m.SharpeRatio), "Recovery", ratio(m.RecoveryFactor)},
		{"Sortino", ratio(m.SortinoRatio), "VaR 95/99", pctLabel(m.VaR95) + " / " + pctLabel(m.VaR99)},
		{"Calmar", ratio(m.CalmarRatio), "ES 95/99", pctLabel(m.ExpectedShortfall95) + " / " + pctLabel(m.ExpectedShortfall99)},
		{"Trades", fmt.Sprintf("%d", m.TotalTrades), "Win rate", pctLabel(m.WinRate)},
		{"Avg win", fmt.Sprintf("$%.2f", m.AvgWin), "Avg loss", fmt.Sprintf("$%.2f", m.AvgLoss)},
		{"Profit factor", ratio(m.ProfitFactor), "t-stat / p", fmt.Sprintf("%.2f / %.3f", m.TStatistic, m.PValue)},
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()

	s := r.ExecutionStats
	fmt.Fprintf(c.out, "\n  Execution: %d orders | filled %s | partial %s | rejected %s | fees $%.2f\n",
		s.TotalOrders, pctLabel(s.FillRate), pctLabel(s.PartialFillRate), pctLabel(s.RejectionRate), s.TotalFees)
	if m.PValue < 0.05 {
		fmt.Fprintf(c.out, "  >>> returns are statistically different from zero (p=%.3f)\n", m.PValue)
	} else {
		fmt.Fprintf(c.out, "  >>> returns are NOT statistically significant (p=%.3f)\n", m.PValue)
	}

	if len(r.Trades) > 0 {
		c.PrintTrades(r.Trades)
	}
	fmt.Fprintln(c.out)
}

// PrintTrades imprime los trades cerrados (los primeros maxTradeRows).
func (c *Console) PrintTrades(trades []domain.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  No trades.")
		return
	}
	if !c.table {
		wins := 0
		var pnl float64
		for _, t := range trades {
			pnl += t.PnL
			if t.IsProfitable() {
				wins++
			}
		}
		fmt.Fprintf(c.out, "%d trades | %d winners | net $%.2f\n", len(trades), wins, pnl)
		return
	}

	fmt.Fprintln(c.out)
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Symbol", "Side", "Entry", "Exit", "Qty", "Entry$", "Exit$", "PnL", "PnL%", "Hours", "Reason")
	for i, t := range trades {
		if i >= maxTradeRows {
			break
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.Symbol,
			string(t.Side),
			t.EntryTime.Format("01-02 15:04"),
			t.ExitTime.Format("01-02 15:04"),
			fmt.Sprintf("%.6g", t.Quantity),
			fmt.Sprintf("%.4f", t.EntryPrice),
			fmt.Sprintf("%.4f", t.ExitPrice),
			fmt.Sprintf("$%.2f", t.PnL),
			pctLabel(t.PnLPct),
			fmt.Sprintf("%.1f", t.DurationHours),
			string(t.ExitReason),
		)
	}
	table.Render()
	if len(trades) > maxTradeRows {
		fmt.Fprintf(c.out, "  ... %d more trades\n", len(trades)-maxTradeRows)
	}
}

// PrintWalkForward imprime los periodos, la estabilidad y el veredicto.
func (c *Console) PrintWalkForward(r domain.WalkForwardReport) {
	verdict := "NOT ROBUST"
	if r.IsRobust() {
		verdict = "ROBUST"
	}
	if !c.table {
		fmt.Fprintf(c.out, "walk-forward %d periods | best %s | test sharpe avg %.2f | overfitting %.2f | consistency %s | %s\n",
			len(r.Periods), r.BestParams, r.Overall.AvgSharpe, r.OverfittingScore,
			pctLabel(r.Stability.ConsistencyRatio), verdict)
		return
	}

	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║  WALK-FORWARD — %d periods%-41s║\n", len(r.Periods), "")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════════╝\n\n")

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Train", "Test", "Threshold", "MinConf", "MaxPos", "Train SR", "Test SR", "Test ret", "Test DD", "p", "Sig")
	for _, p := range r.Periods {
		table.Append(
			fmt.Sprintf("%d", p.Index),
			p.TrainStart.Format("2006-01-02")+"→"+p.TrainEnd.Format("2006-01-02"),
			p.TestStart.Format("2006-01-02")+"→"+p.TestEnd.Format("2006-01-02"),
			fmt.Sprintf("%.2f", p.Params.CorrelationThreshold),
			fmt.Sprintf("%.2f", p.Params.MinConfidence),
			fmt.Sprintf("%.3f", p.Params.MaxPositionSize),
			ratio(p.Train.SharpeRatio),
			ratio(p.Test.SharpeRatio),
			pctLabel(p.Test.TotalReturn),
			pctLabel(p.Test.MaxDrawdown),
			fmt.Sprintf("%.3f", p.Test.PValue),
			significance(p),
		)
	}
	table.Render()

	o, s := r.Overall, r.Stability
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  Test return:  avg %s | median %s | std %s\n",
		pctLabel(o.AvgReturn), pctLabel(o.MedianReturn), pctLabel(o.StdReturn))
	fmt.Fprintf(c.out, "  Test sharpe:  avg %.2f | median %.2f\n", o.AvgSharpe, o.MedianSharpe)
	fmt.Fprintf(c.out, "  Drawdown:     avg %s | worst %s\n", pctLabel(o.AvgDrawdown), pctLabel(o.WorstDrawdown))
	fmt.Fprintf(c.out, "  Consistency:  %s of periods positive\n", pctLabel(s.ConsistencyRatio))
	fmt.Fprintf(c.out, "  Stability:    return %.2f | sharpe %.2f\n", s.ReturnStability, s.SharpeStability)
	fmt.Fprintf(c.out, "  Overfitting:  %.2f\n", r.OverfittingScore)
	fmt.Fprintf(c.out, "  Best params:  %s\n", r.BestParams)
	if b := r.Bootstrap; b.Simulations > 0 {
		fmt.Fprintf(c.out, "  Bootstrap:    %d × %d-bar blocks | return CI95 [%s, %s] | sharpe CI95 [%.2f, %.2f]\n",
			b.Simulations, b.BlockSize, pctLabel(b.ReturnCILow), pctLabel(b.ReturnCIHigh), b.SharpeCILow, b.SharpeCIHigh)
	}
	fmt.Fprintf(c.out, "  >>> %s\n", verdict)

	if r.Final.RunID != "" {
		c.PrintBacktest(r.Final)
	}
}

// significance marca con B la corrección de Bonferroni y con F la de FDR.
func significance(p domain.Period) string {
	out := ""
	if p.SignificantBonferroni {
		out += "B"
	}
	if p.SignificantFDR {
		out += "F"
	}
	if out == "" {
		return "-"
	}
	return out
}

// PrintRuns imprime el listado de corridas guardadas.
func (c *Console) PrintRuns(runs []domain.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "  No stored runs.")
		return
	}
	if !c.table {
		for _, r := range runs {
			fmt.Fprintf(c.out, "%s %s %s %s sharpe %s trades %d\n",
				r.RunID, r.CreatedAt.Format("2006-01-02 15:04"), r.Strategy,
				pctLabel(r.TotalReturn), ratio(r.SharpeRatio), r.TotalTrades)
		}
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Run", "Created", "Strategy", "Period", "Symbols", "Final$", "Return", "Sharpe", "MaxDD", "Trades")
	for _, r := range runs {
		table.Append(
			shortID(r.RunID),
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Strategy,
			r.Start.Format("2006-01-02")+"→"+r.End.Format("2006-01-02"),
			truncate(strings.Join(r.Symbols, ","), 30),
			fmt.Sprintf("$%.2f", r.FinalEquity),
			pctLabel(r.TotalReturn),
			ratio(r.SharpeRatio),
			pctLabel(r.MaxDrawdown),
			fmt.Sprintf("%d", r.TotalTrades),
		)
	}
	table.Render()
}

// PrintExecution imprime el resultado de una orden simulada.
func (c *Console) PrintExecution(r domain.ExecutionResult) {
	req := r.Request
	if !c.table {
		fmt.Fprintf(c.out, "%s %s %s %s %.6g → %s %.6g @ %.4f fee %.4f slip %.2fbps %.0fms\n",
			r.OrderID, req.Symbol, req.Side, req.Type, req.Quantity,
			r.Status, r.TotalFilledQty, r.AverageFillPrice, r.TotalFees, r.SlippageBps, r.ExecutionTimeMs)
		return
	}

	mc := r.Conditions
	table := tablewriter.NewWriter(c.out)
	table.Header("Field", "Value")
	rows := [][]string{
		{"Order", r.OrderID},
		{"Request", fmt.Sprintf("%s %s %s qty %.6g", req.Side, req.Type, req.Symbol, req.Quantity)},
		{"Status", string(r.Status)},
		{"Market", fmt.Sprintf("bid %.4f / ask %.4f (%.2f bps, %s)", mc.Bid, mc.Ask, mc.SpreadBps, mc.Tier)},
		{"Liquidity", fmt.Sprintf("%.2f", mc.LiquidityScore)},
		{"Filled", fmt.Sprintf("%.6g (%s)", r.TotalFilledQty, pctLabel(fillRatio(r)))},
		{"Avg price", fmt.Sprintf("%.4f", r.AverageFillPrice)},
		{"Fees", fmt.Sprintf("%.6f", r.TotalFees)},
		{"Slippage", fmt.Sprintf("%.2f bps", r.SlippageBps)},
		{"Impact", fmt.Sprintf("%.2f bps", r.MarketImpactBps)},
		{"Latency", fmt.Sprintf("%.1f ms", r.ExecutionTimeMs)},
	}
	for _, f := range r.Fills {
		maker := "taker"
		if f.IsMaker {
			maker = "maker"
		}
		rows = append(rows, []string{"Fill", fmt.Sprintf("%s %.6g @ %.4f fee %.6f %s (%s)",
			f.Timestamp.Format(time.RFC3339Nano), f.Quantity, f.Price, f.Fee, f.FeeAsset, maker)})
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

// --- helpers ---

func fillRatio(r domain.ExecutionResult) float64 {
	if r.Request.Quantity <= 0 {
		return 0
	}
	return r.TotalFilledQty / r.Request.Quantity
}

func pctLabel(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return ratio(v)
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

// ratio formatea ratios que pueden ser infinitos (Sortino, profit factor).
func ratio(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "INF"
	case math.IsInf(v, -1):
		return "-INF"
	case math.IsNaN(v):
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
