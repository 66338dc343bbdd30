package domain

// PerformanceMetrics son las métricas de rendimiento de una curva de equity
// y su lista de trades. Los drawdowns son fracciones negativas (-0.12 = -12%).
type PerformanceMetrics struct {
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64
	SharpeRatio      float64
	SortinoRatio     float64
	CalmarRatio      float64

	MaxDrawdown             float64
	MaxDrawdownDurationDays float64
	AvgDrawdown             float64
	RecoveryFactor          float64

	VaR95               float64
	VaR99               float64
	ExpectedShortfall95 float64
	ExpectedShortfall99 float64

	TotalTrades  int
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64
	ProfitFactor float64

	TStatistic float64
	PValue     float64
	CILow95    float64
	CIHigh95   float64
}

// EmptyMetrics son las métricas de una corrida sin trades o sin curva.
func EmptyMetrics() PerformanceMetrics {
	return PerformanceMetrics{PValue: 1}
}

// IsStatisticallySignificant devuelve true si p < alpha.
func (m PerformanceMetrics) IsStatisticallySignificant(alpha float64) bool {
	return m.PValue < alpha
}
