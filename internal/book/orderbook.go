package book

import (
	"sort"

	"github.com/shopspring/decimal"
)

// OrderList is a slice of price levels. Asks are kept ascending by price,
// bids descending; the zeroth element is always the best level.
type OrderList []*Order

// Clone deep-copies the list.
func (l OrderList) Clone() OrderList {
	out := make(OrderList, 0, len(l))
	for _, o := range l {
		out = append(out, o.Clone())
	}
	return out
}

// TotalWorth sums the worth of every level.
func (l OrderList) TotalWorth() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l {
		total = total.Add(o.Worth())
	}
	return total
}

// TotalAmount sums the amount of every level.
func (l OrderList) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l {
		total = total.Add(o.Amount())
	}
	return total
}

// ReduceFromBottom removes amountToRemove from the tail of the list. Whole
// levels are dropped while the remainder covers them; a partial remainder
// shrinks the last level, which recomputes its worth.
func (l OrderList) ReduceFromBottom(amountToRemove decimal.Decimal) OrderList {
	out := l
	for len(out) > 0 && amountToRemove.GreaterThanOrEqual(out[len(out)-1].Amount()) {
		amountToRemove = amountToRemove.Sub(out[len(out)-1].Amount())
		out = out[:len(out)-1]
	}
	if len(out) > 0 && amountToRemove.IsPositive() {
		last := out[len(out)-1]
		last.SetAmount(last.Amount().Sub(amountToRemove))
	}
	return out
}

// OrderBook is a snapshot of one venue's asks and bids.
type OrderBook struct {
	Asks OrderList
	Bids OrderList
}

// Clone deep-copies both sides.
func (b *OrderBook) Clone() *OrderBook {
	return &OrderBook{Asks: b.Asks.Clone(), Bids: b.Bids.Clone()}
}

// Normalize sorts asks ascending and bids descending by price. Feed adapters
// call it after applying a snapshot or delta.
func (b *OrderBook) Normalize() {
	sort.SliceStable(b.Asks, func(i, j int) bool {
		return b.Asks[i].Price().LessThan(b.Asks[j].Price())
	})
	sort.SliceStable(b.Bids, func(i, j int) bool {
		return b.Bids[i].Price().GreaterThan(b.Bids[j].Price())
	})
}

// BestAsk returns the lowest ask, or false when the book side is empty.
func (b *OrderBook) BestAsk() (*Order, bool) {
	if len(b.Asks) == 0 {
		return nil, false
	}
	return b.Asks[0], true
}

// BestBid returns the highest bid, or false when the book side is empty.
func (b *OrderBook) BestBid() (*Order, bool) {
	if len(b.Bids) == 0 {
		return nil, false
	}
	return b.Bids[0], true
}
