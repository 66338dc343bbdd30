package execution

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
)

const (
	partialFillMinUSD   = 100_000
	partialFillMaxProb  = 0.5
	partialFillMinRatio = 0.70
	partialFillSpread   = 0.25
	maxImpactBps        = 100
)

// Config holds the simulator settings.
type Config struct {
	UseRealisticExecution bool
	IncludeFees           bool
	UseBNBDiscount        bool
	Fees                  FeeConfig
	Latency               LatencyConfig
}

// DefaultConfig returns realistic execution with fees and the BNB discount.
func DefaultConfig() Config {
	return Config{
		UseRealisticExecution: true,
		IncludeFees:           true,
		UseBNBDiscount:        true,
		Fees:                  DefaultFeeConfig(),
		Latency:               DefaultLatencyConfig(),
	}
}

// Simulator composes the fee, liquidity, slippage and latency models to
// simulate one order at a time. It holds no positions; its only state is the
// execution counters. Not safe for concurrent use: build one per backtest.
type Simulator struct {
	cfg       Config
	fees      FeeModel
	liquidity LiquidityModel
	slippage  SlippageModel
	latency   LatencyModel
	rng       RandomSource

	totalOrders    int
	filledOrders   int
	partialFills   int
	rejectedOrders int
}

// NewSimulator creates a simulator drawing randomness from rng.
func NewSimulator(cfg Config, rng RandomSource) *Simulator {
	return &Simulator{
		cfg:       cfg,
		fees:      NewFeeModel(cfg.Fees),
		liquidity: NewLiquidityModel(),
		slippage:  NewSlippageModel(),
		latency:   NewLatencyModel(cfg.Latency, rng),
		rng:       rng,
	}
}

// ExecuteOrder simulates the full lifecycle of one order:
// price determination → slippage → partial fill → fees.
//
// An order without an executable price is a business rejection, reported via
// the result status. Malformed input returns an error wrapping
// domain.ErrInvalidOrder and leaves the counters untouched.
func (s *Simulator) ExecuteOrder(order domain.OrderRequest, marketPrice, volume24h, volatility float64) (domain.ExecutionResult, error) {
	if err := validateOrder(order, marketPrice, volume24h, volatility); err != nil {
		return domain.ExecutionResult{}, err
	}

	s.totalOrders++
	orderID := fmt.Sprintf("order_%d", s.totalOrders)

	mc := s.liquidity.Conditions(order.Timestamp, order.Symbol, marketPrice, volume24h, volatility)
	delayMs := s.latency.DelayMs(mc)

	result := domain.ExecutionResult{
		OrderID:         orderID,
		Request:         order,
		Conditions:      mc,
		ExecutionTimeMs: delayMs,
	}

	price, ok := executionPrice(order, mc)
	if !ok {
		s.rejectedOrders++
		result.Status = domain.StatusRejected
		slog.Debug("order rejected",
			"order_id", orderID,
			"symbol", order.Symbol,
			"type", order.Type,
			"side", order.Side,
			"bid", mc.Bid,
			"ask", mc.Ask,
		)
		return result, nil
	}

	orderUSD := order.Notional(price)

	var slippageBps float64
	if s.cfg.UseRealisticExecution {
		slippageBps = s.slippage.Bps(orderUSD, mc)
		factor := 1 + slippageBps/10_000
		if order.Side == domain.SideBuy {
			price *= factor
		} else {
			price /= factor
		}
	}

	filledQty := s.fillQuantity(order.Quantity, orderUSD, mc.LiquidityScore)

	isMaker := order.Type == domain.OrderLimit
	var fee float64
	feeAsset := s.cfg.Fees.Asset
	if s.cfg.IncludeFees {
		fee, feeAsset = s.fees.Calculate(price, filledQty, isMaker, s.cfg.UseBNBDiscount)
	}

	result.Fills = []domain.Fill{{
		Timestamp: order.Timestamp.Add(time.Duration(delayMs * float64(time.Millisecond))),
		Price:     price,
		Quantity:  filledQty,
		Fee:       fee,
		FeeAsset:  feeAsset,
		IsMaker:   isMaker,
	}}
	result.TotalFilledQty = filledQty
	result.AverageFillPrice = price
	result.TotalFees = fee
	result.SlippageBps = slippageBps
	result.MarketImpactBps = math.Min(slippageBps*0.5, maxImpactBps)

	if filledQty >= domain.FilledThreshold*order.Quantity {
		result.Status = domain.StatusFilled
		s.filledOrders++
	} else {
		result.Status = domain.StatusPartial
		s.partialFills++
	}

	return result, nil
}

// fillQuantity decides whether a large order only fills partially.
func (s *Simulator) fillQuantity(qty, orderUSD, liquidityScore float64) float64 {
	if !s.cfg.UseRealisticExecution || orderUSD <= partialFillMinUSD {
		return qty
	}
	prob := math.Min(partialFillMaxProb, orderUSD/1_000_000) * (1 - liquidityScore)
	if s.rng.Float64() < prob {
		return qty * (partialFillMinRatio + s.rng.Float64()*partialFillSpread)
	}
	return qty
}

// executionPrice picks the raw price by order type. ok=false means there is
// no executable price and the order is rejected.
func executionPrice(order domain.OrderRequest, mc domain.MarketConditions) (float64, bool) {
	switch order.Type {
	case domain.OrderMarket:
		if order.Side == domain.SideBuy {
			return mc.Ask, true
		}
		return mc.Bid, true

	case domain.OrderLimit:
		if order.LimitPrice == nil {
			return 0, false
		}
		limit := *order.LimitPrice
		if order.Side == domain.SideBuy && mc.Ask <= limit {
			return limit, true
		}
		if order.Side == domain.SideSell && mc.Bid >= limit {
			return limit, true
		}
		return 0, false

	case domain.OrderStopLoss:
		// Simplified: triggers at mid whenever a stop price is set.
		if order.StopPrice == nil {
			return 0, false
		}
		return mc.Mid(), true
	}
	return 0, false
}

func validateOrder(order domain.OrderRequest, marketPrice, volume24h, volatility float64) error {
	switch {
	case !order.Type.Valid():
		return fmt.Errorf("execution.ExecuteOrder: %w: %w: %q", domain.ErrInvalidOrder, domain.ErrUnknownOrderType, order.Type)
	case !order.Side.Valid():
		return fmt.Errorf("execution.ExecuteOrder: %w: %w: %q", domain.ErrInvalidOrder, domain.ErrUnknownSide, order.Side)
	case !isPositive(order.Quantity):
		return fmt.Errorf("execution.ExecuteOrder: %w: quantity %v", domain.ErrInvalidOrder, order.Quantity)
	case !isPositive(marketPrice):
		return fmt.Errorf("execution.ExecuteOrder: %w: market price %v", domain.ErrInvalidOrder, marketPrice)
	case math.IsNaN(volume24h) || volume24h < 0:
		return fmt.Errorf("execution.ExecuteOrder: %w: volume %v", domain.ErrInvalidOrder, volume24h)
	case math.IsNaN(volatility) || math.IsInf(volatility, 0) || volatility < 0:
		return fmt.Errorf("execution.ExecuteOrder: %w: volatility %v", domain.ErrInvalidOrder, volatility)
	}
	if order.LimitPrice != nil && !isPositive(*order.LimitPrice) {
		return fmt.Errorf("execution.ExecuteOrder: %w: limit price %v", domain.ErrInvalidOrder, *order.LimitPrice)
	}
	return nil
}

func isPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Stats returns the accumulated execution counters and rates.
func (s *Simulator) Stats() domain.ExecutionStats {
	return domain.NewExecutionStats(s.totalOrders, s.filledOrders, s.partialFills, s.rejectedOrders)
}

// Reset zeroes the execution counters.
func (s *Simulator) Reset() {
	s.totalOrders, s.filledOrders, s.partialFills, s.rejectedOrders = 0, 0, 0, 0
}
