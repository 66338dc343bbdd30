package ports

import "github.com/alejandrodnm/execsim/internal/domain"

// Reporter presenta los resultados al usuario.
// En la implementación de consola, imprime tablas formateadas.
type Reporter interface {
	PrintBacktest(result domain.BacktestResult)
	PrintTrades(trades []domain.Trade)
	PrintWalkForward(report domain.WalkForwardReport)
	PrintRuns(runs []domain.RunSummary)
	PrintExecution(result domain.ExecutionResult)
}
