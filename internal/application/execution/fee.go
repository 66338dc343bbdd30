package execution

// FeeConfig es el esquema de comisiones del exchange.
type FeeConfig struct {
	MakerRate float64 `yaml:"maker_rate"` // 0.001 = 0.1%
	TakerRate float64 `yaml:"taker_rate"`
	Discount  float64 `yaml:"discount"` // descuento por pagar en BNB, 0.25 = 25%
	Asset     string  `yaml:"asset"`    // activo en el que se cobra la comisión
}

// DefaultFeeConfig devuelve el esquema spot estándar: 0.1%/0.1%, 25% de descuento, USDC.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		MakerRate: 0.001,
		TakerRate: 0.001,
		Discount:  0.25,
		Asset:     "USDC",
	}
}

// FeeModel calcula comisiones maker/taker. Sin estado.
type FeeModel struct {
	cfg FeeConfig
}

// NewFeeModel crea un FeeModel con la configuración dada.
func NewFeeModel(cfg FeeConfig) FeeModel {
	return FeeModel{cfg: cfg}
}

// Rate devuelve la tasa efectiva para una ejecución.
func (m FeeModel) Rate(isMaker, useDiscount bool) float64 {
	rate := m.cfg.TakerRate
	if isMaker {
		rate = m.cfg.MakerRate
	}
	if useDiscount {
		rate *= 1 - m.cfg.Discount
	}
	return rate
}

// Calculate devuelve la comisión y el activo en que se cobra.
//
//	fee = price × quantity × rate
func (m FeeModel) Calculate(price, quantity float64, isMaker, useDiscount bool) (float64, string) {
	return price * quantity * m.Rate(isMaker, useDiscount), m.cfg.Asset
}
