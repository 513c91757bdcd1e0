// Package exchange models a trading venue: balances, fee schedule, rounding
// rules and the current order book. Venues differ only by configuration, not
// by type.
package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"coinarb/internal/book"
)

// FeeCurrency says which side of a buy the venue takes its trade fee from.
type FeeCurrency string

const (
	// FeeInFiat venues add the fee on top of the fiat cost of a buy.
	FeeInFiat FeeCurrency = "fiat"
	// FeeInBtc venues deduct the fee from the purchased BTC.
	FeeInBtc FeeCurrency = "btc"
)

// ImmediateFillOrderID is the order id returned by venues whose orders fill
// as soon as they are placed. Such orders never need a fulfillment check.
const ImmediateFillOrderID = "0"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownExchange   = errors.New("unknown exchange")
)

// Minimum order floors shared by all venues.
var (
	minFiatOrderCost      = decimal.RequireFromString("5.0")
	minBitcoinOrderAmount = decimal.RequireFromString("0.00001")
)

// Config holds everything that distinguishes one venue from another.
type Config struct {
	Name                  string
	TradeFeePercent       decimal.Decimal
	BtcTransferFee        decimal.Decimal
	AmountDecimalPlaces   int32
	CostDecimalPlaces     *int32 // nil means total costs are not rounded
	FeeCurrency           FeeCurrency
	OrdersFillImmediately bool
	InitialBtc            decimal.Decimal
	InitialFiat           decimal.Decimal
}

// Exchange is one venue's balances, fee schedule and order book.
type Exchange struct {
	Name                  string
	AvailableBtc          decimal.Decimal
	AvailableFiat         decimal.Decimal
	BtcInTransfer         decimal.Decimal
	BtcTransferFee        decimal.Decimal
	AmountDecimalPlaces   int32
	FeeCurrency           FeeCurrency
	OrdersFillImmediately bool
	Book                  *book.OrderBook

	// StatusChecker looks up live order status; nil in simulation runs.
	StatusChecker OrderStatusChecker

	tradeFeePercent decimal.Decimal
	tradeFeeDecimal decimal.Decimal
	costPlaces      *int32
}

// New builds an exchange from its venue configuration.
func New(cfg Config) *Exchange {
	e := &Exchange{
		Name:                  cfg.Name,
		AvailableBtc:          cfg.InitialBtc,
		AvailableFiat:         cfg.InitialFiat,
		BtcTransferFee:        cfg.BtcTransferFee,
		AmountDecimalPlaces:   cfg.AmountDecimalPlaces,
		FeeCurrency:           cfg.FeeCurrency,
		OrdersFillImmediately: cfg.OrdersFillImmediately,
		Book:                  &book.OrderBook{},
		costPlaces:            cfg.CostDecimalPlaces,
	}
	e.SetTradeFee(cfg.TradeFeePercent)
	return e
}

// SetTradeFee sets the trade fee as a percentage (0.25 means 0.25%) and
// derives the decimal multiplier used in cost math.
func (e *Exchange) SetTradeFee(percent decimal.Decimal) {
	e.tradeFeePercent = percent
	e.tradeFeeDecimal = percent.Div(decimal.NewFromInt(100))
}

// TradeFeePercent returns the fee as configured, e.g. 0.25 for 0.25%.
func (e *Exchange) TradeFeePercent() decimal.Decimal { return e.tradeFeePercent }

// TradeFeeDecimal returns the fee as a multiplier, e.g. 0.0025 for 0.25%.
func (e *Exchange) TradeFeeDecimal() decimal.Decimal { return e.tradeFeeDecimal }

// SimulatedBuy settles a buy against the venue's balances: the fiat cost is
// deducted and the purchased amount credited.
func (e *Exchange) SimulatedBuy(amount, cost decimal.Decimal) error {
	if cost.GreaterThan(e.AvailableFiat) {
		return fmt.Errorf("%w: buy of %s costing %s exceeds available fiat %s on %s",
			ErrInsufficientFunds, amount, cost, e.AvailableFiat, e.Name)
	}
	e.AvailableFiat = e.AvailableFiat.Sub(cost)
	e.AvailableBtc = e.AvailableBtc.Add(amount)
	return nil
}

// SimulatedSell settles a sell against the venue's balances: the sold amount
// is deducted and the fiat proceeds credited.
func (e *Exchange) SimulatedSell(amount, cost decimal.Decimal) error {
	if amount.GreaterThan(e.AvailableBtc) {
		return fmt.Errorf("%w: sell of %s exceeds available btc %s on %s",
			ErrInsufficientFunds, amount, e.AvailableBtc, e.Name)
	}
	e.AvailableBtc = e.AvailableBtc.Sub(amount)
	e.AvailableFiat = e.AvailableFiat.Add(cost)
	return nil
}

// ApplyFeeToBuyCost turns a raw buy cost into the total the venue charges.
// Venues that take their fee in BTC charge the raw cost; fiat-fee venues add
// the fee on top. The result is rounded per the venue's cost precision.
func (e *Exchange) ApplyFeeToBuyCost(cost decimal.Decimal) decimal.Decimal {
	if e.FeeCurrency == FeeInBtc {
		return e.RoundTotalCost(cost)
	}
	return e.RoundTotalCost(decimal.NewFromInt(1).Add(e.tradeFeeDecimal).Mul(cost))
}

// ApplyFeeToSellCost turns raw sell proceeds into the net amount the venue
// pays out after its fee, rounded per the venue's cost precision.
func (e *Exchange) ApplyFeeToSellCost(cost decimal.Decimal) decimal.Decimal {
	return e.RoundTotalCost(decimal.NewFromInt(1).Sub(e.tradeFeeDecimal).Mul(cost))
}

// RoundTotalCost applies the venue's total-cost rounding. Venues without a
// configured cost precision pass the value through unchanged.
func (e *Exchange) RoundTotalCost(cost decimal.Decimal) decimal.Decimal {
	if e.costPlaces == nil {
		return cost
	}
	return cost.RoundBank(*e.costPlaces)
}

// IsOrderCostValid reports whether an order clears the venue's minimum cost
// and minimum amount floors.
func (e *Exchange) IsOrderCostValid(amount, cost decimal.Decimal) bool {
	return cost.GreaterThanOrEqual(minFiatOrderCost) &&
		amount.GreaterThanOrEqual(minBitcoinOrderAmount)
}
