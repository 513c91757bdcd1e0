package arbitrage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"coinarb/internal/book"
)

func TestCalculateCostsDegeneratesWhenRoundingEmptiesASide(t *testing.T) {
	opp := NewOpportunity(itbitVenue("0"), krakenVenue("0"))
	opp.AddBuyOrder(book.NewOrder(d("0.00004"), d("400")))
	opp.AddSellOrder(book.NewOrder(d("0.00004"), d("401")))

	opp.CalculateCosts()

	assert.True(t, opp.BuyAmount.IsZero(), "buy amount = %s", opp.BuyAmount)
	assert.True(t, opp.TotalBuyCost.IsZero())
	assert.True(t, opp.TotalSellCost.IsZero())
	assert.True(t, opp.Profit.IsZero())
	assert.Empty(t, opp.BuyOrders())
}
