// Package book holds the order book primitives shared by the exchange and
// arbitrage packages. All prices and amounts are decimal; worth is always
// amount * price unless explicitly overridden.
package book

import "github.com/shopspring/decimal"

// Order is a single price level in an order book.
type Order struct {
	amount decimal.Decimal
	price  decimal.Decimal
	worth  decimal.Decimal
}

// NewOrder builds an order whose worth is derived from amount and price.
func NewOrder(amount, price decimal.Decimal) *Order {
	return &Order{
		amount: amount,
		price:  price,
		worth:  amount.Mul(price),
	}
}

// NewOrderWithWorth builds an order with an explicit worth. Used when the
// worth has already been rounded and must not be recomputed.
func NewOrderWithWorth(amount, price, worth decimal.Decimal) *Order {
	return &Order{amount: amount, price: price, worth: worth}
}

func (o *Order) Amount() decimal.Decimal { return o.amount }
func (o *Order) Price() decimal.Decimal  { return o.price }
func (o *Order) Worth() decimal.Decimal  { return o.worth }

// SetAmount updates the amount and recomputes the worth.
func (o *Order) SetAmount(amount decimal.Decimal) {
	o.amount = amount
	o.worth = amount.Mul(o.price)
}

// SetPrice updates the price without touching the worth.
func (o *Order) SetPrice(price decimal.Decimal) {
	o.price = price
}

// Clone returns an independent copy with worth recomputed from amount and
// price, discarding any override.
func (o *Order) Clone() *Order {
	return NewOrder(o.amount, o.price)
}
