// Package arbitrage finds, filters and validates cross-exchange arbitration
// opportunities.
package arbitrage

import (
	"time"

	"github.com/shopspring/decimal"

	"coinarb/internal/book"
	"coinarb/internal/exchange"
)

// Opportunity is one arbitration trade: buy a BTC amount on one exchange and
// sell it on another. The buy and sell order lists record the price tiers the
// trade consumes.
type Opportunity struct {
	ID    int64
	RunID int64

	BuyExchange  *exchange.Exchange
	SellExchange *exchange.Exchange

	BuyAmount  decimal.Decimal
	SellAmount decimal.Decimal

	// Prices of the deepest tier each side reaches; these are the limit
	// prices the orders would be placed at.
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal

	TotalBuyCost  decimal.Decimal
	TotalSellCost decimal.Decimal
	Profit        decimal.Decimal

	BuyOrderID  string
	SellOrderID string
	TransferID  int64

	ExecutedAt time.Time
	CreatedAt  time.Time
	ModifiedAt time.Time

	buyOrders  book.OrderList
	sellOrders book.OrderList
}

// NewOpportunity starts an empty opportunity between the two exchanges.
func NewOpportunity(buy, sell *exchange.Exchange) *Opportunity {
	return &Opportunity{BuyExchange: buy, SellExchange: sell}
}

// AddBuyOrder appends a consumed ask tier and grows the buy amount.
func (o *Opportunity) AddBuyOrder(order *book.Order) {
	o.buyOrders = append(o.buyOrders, order)
	o.BuyAmount = o.BuyAmount.Add(order.Amount())
}

// AddSellOrder appends a consumed bid tier and grows the sell amount.
func (o *Opportunity) AddSellOrder(order *book.Order) {
	o.sellOrders = append(o.sellOrders, order)
	o.SellAmount = o.SellAmount.Add(order.Amount())
}

// BuyOrders returns the consumed ask tiers.
func (o *Opportunity) BuyOrders() book.OrderList { return o.buyOrders }

// SellOrders returns the consumed bid tiers.
func (o *Opportunity) SellOrders() book.OrderList { return o.sellOrders }

// CalculateCosts rounds the trade amounts to what the venues can actually
// execute, then derives limit prices, total costs and profit. When rounding
// consumes an entire side the opportunity degenerates to zero cost and zero
// profit.
func (o *Opportunity) CalculateCosts() {
	o.roundAmounts()

	if len(o.buyOrders) == 0 || len(o.sellOrders) == 0 {
		o.TotalBuyCost = decimal.Zero
		o.TotalSellCost = decimal.Zero
	} else {
		o.BuyPrice = o.buyOrders[len(o.buyOrders)-1].Price()
		o.SellPrice = o.sellOrders[len(o.sellOrders)-1].Price()

		o.TotalBuyCost = o.BuyExchange.ApplyFeeToBuyCost(o.buyOrders.TotalWorth())
		o.TotalSellCost = o.SellExchange.ApplyFeeToSellCost(o.sellOrders.TotalWorth())
	}

	o.Profit = o.TotalSellCost.Sub(o.TotalBuyCost)
}

// roundAmounts trims the buy and sell amounts to the venues' amount
// precision. When the buy fee is charged in fiat both amounts are equal, so
// both are floored to the coarser venue's precision. When the buy fee is
// charged in BTC the amounts differ by the fee factor: the coarser side is
// floored and the other side recomputed from it.
func (o *Opportunity) roundAmounts() {
	one := decimal.NewFromInt(1)

	if o.BuyExchange.FeeCurrency == exchange.FeeInFiat {
		dp := min(o.BuyExchange.AmountDecimalPlaces, o.SellExchange.AmountDecimalPlaces)
		o.BuyAmount = o.roundSide(o.BuyAmount, o.BuyAmount.RoundFloor(dp), &o.buyOrders)
		o.SellAmount = o.roundSide(o.SellAmount, o.SellAmount.RoundFloor(dp), &o.sellOrders)
		return
	}

	if o.SellExchange.AmountDecimalPlaces < o.BuyExchange.AmountDecimalPlaces {
		o.SellAmount = o.roundSide(o.SellAmount,
			o.SellAmount.RoundFloor(o.SellExchange.AmountDecimalPlaces), &o.sellOrders)
		newBuy := o.SellAmount.Mul(one.Add(o.BuyExchange.TradeFeeDecimal()))
		o.BuyAmount = o.roundSide(o.BuyAmount,
			newBuy.RoundBank(o.BuyExchange.AmountDecimalPlaces), &o.buyOrders)
	} else {
		o.BuyAmount = o.roundSide(o.BuyAmount,
			o.BuyAmount.RoundFloor(o.BuyExchange.AmountDecimalPlaces), &o.buyOrders)
		newSell := o.BuyAmount.Mul(one.Sub(o.BuyExchange.TradeFeeDecimal()))
		o.SellAmount = o.roundSide(o.SellAmount,
			newSell.RoundBank(o.SellExchange.AmountDecimalPlaces), &o.sellOrders)
	}
}

// roundSide reconciles an order list with a rounded amount. A positive
// difference is chopped off the bottom tiers; a negative one (the recomputed
// amount grew) is added back to the last tier.
func (o *Opportunity) roundSide(oldAmount, newAmount decimal.Decimal, orders *book.OrderList) decimal.Decimal {
	chopped := oldAmount.Sub(newAmount)
	switch {
	case chopped.IsPositive():
		*orders = orders.ReduceFromBottom(chopped)
	case chopped.IsNegative():
		last := (*orders)[len(*orders)-1]
		last.SetAmount(last.Amount().Add(chopped.Neg()))
	}
	return newAmount
}
