package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestOrderWorth(t *testing.T) {
	t.Run("derived from amount and price", func(t *testing.T) {
		o := NewOrder(d("0.6"), d("401"))
		assert.True(t, o.Worth().Equal(d("240.6")), "worth = %s", o.Worth())
	})

	t.Run("SetAmount recomputes worth", func(t *testing.T) {
		o := NewOrder(d("0.6"), d("401"))
		o.SetAmount(d("0.5"))
		assert.True(t, o.Worth().Equal(d("200.5")), "worth = %s", o.Worth())
	})

	t.Run("SetPrice leaves worth alone", func(t *testing.T) {
		o := NewOrder(d("0.6"), d("401"))
		o.SetPrice(d("500"))
		assert.True(t, o.Worth().Equal(d("240.6")), "worth = %s", o.Worth())
	})

	t.Run("Clone discards a worth override", func(t *testing.T) {
		o := NewOrderWithWorth(d("0.6"), d("401"), d("999"))
		c := o.Clone()
		assert.True(t, c.Worth().Equal(d("240.6")), "worth = %s", c.Worth())
		assert.True(t, o.Worth().Equal(d("999")))
	})
}

func TestOrderListClone(t *testing.T) {
	l := OrderList{NewOrder(d("1"), d("400")), NewOrder(d("2"), d("401"))}
	c := l.Clone()

	c[0].SetAmount(d("0.5"))
	assert.True(t, l[0].Amount().Equal(d("1")), "clone must not share orders")
	assert.True(t, c.TotalAmount().Equal(d("2.5")))
	assert.True(t, l.TotalWorth().Equal(d("1202")))
}

func TestReduceFromBottom(t *testing.T) {
	build := func() OrderList {
		return OrderList{
			NewOrder(d("1.0"), d("400")),
			NewOrder(d("0.5"), d("399")),
			NewOrder(d("0.2"), d("398")),
		}
	}

	t.Run("partial removal shrinks the last order", func(t *testing.T) {
		l := build().ReduceFromBottom(d("0.1"))
		require.Len(t, l, 3)
		assert.True(t, l[2].Amount().Equal(d("0.1")))
		assert.True(t, l[2].Worth().Equal(d("39.8")))
	})

	t.Run("exact removal drops the last order", func(t *testing.T) {
		l := build().ReduceFromBottom(d("0.2"))
		require.Len(t, l, 2)
		assert.True(t, l[1].Amount().Equal(d("0.5")))
	})

	t.Run("removal spanning orders", func(t *testing.T) {
		l := build().ReduceFromBottom(d("0.4"))
		require.Len(t, l, 2)
		assert.True(t, l[1].Amount().Equal(d("0.3")))
	})

	t.Run("removing everything empties the list", func(t *testing.T) {
		l := build().ReduceFromBottom(d("1.7"))
		assert.Empty(t, l)
	})
}

func TestOrderBookNormalize(t *testing.T) {
	b := &OrderBook{
		Asks: OrderList{NewOrder(d("1"), d("402")), NewOrder(d("1"), d("400"))},
		Bids: OrderList{NewOrder(d("1"), d("398")), NewOrder(d("1"), d("401"))},
	}
	b.Normalize()

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Price().Equal(d("400")))

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Price().Equal(d("401")))
}

func TestOrderBookEmptySides(t *testing.T) {
	b := &OrderBook{}
	_, ok := b.BestAsk()
	assert.False(t, ok)
	_, ok = b.BestBid()
	assert.False(t, ok)
}
