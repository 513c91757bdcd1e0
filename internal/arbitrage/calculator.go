package arbitrage

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"coinarb/internal/book"
	"coinarb/internal/exchange"
)

// Tiers that add less than this much profit are not worth executing and stop
// the walk down the books.
var minTierProfit = decimal.RequireFromString("0.001")

// Venue rounding can make the real cost of a buy slightly higher than the
// calculated one, so a cent of the buy exchange's fiat is held back.
var fiatSafetyMargin = decimal.RequireFromString("0.01")

// Fiat balances at or below this are too small to hunt with.
var minUsableFiat = decimal.NewFromInt(1)

// BookRefresher updates the order book on an exchange before a hunting round.
type BookRefresher interface {
	Refresh(ctx context.Context, ex *exchange.Exchange) error
}

// Hunter walks every ordered pair of exchanges looking for profitable
// arbitration between their order books.
type Hunter struct {
	exchanges []*exchange.Exchange
	refresher BookRefresher
	logger    *slog.Logger
}

// NewHunter creates a Hunter over the given exchange fleet. The refresher may
// be nil when books are maintained elsewhere.
func NewHunter(exchanges []*exchange.Exchange, refresher BookRefresher, logger *slog.Logger) *Hunter {
	return &Hunter{exchanges: exchanges, refresher: refresher, logger: logger}
}

// FindOpportunities refreshes all order books in parallel, then evaluates
// every ordered (buy, sell) pair. Opportunities come back sorted by
// descending profit; nil means none were found.
func (h *Hunter) FindOpportunities(ctx context.Context, maxBtc, maxFiat, minProfit decimal.Decimal, accountForTransferFee bool) []*Opportunity {
	h.refreshBooks(ctx)

	var opportunities []*Opportunity
	for _, buy := range h.exchanges {
		for _, sell := range h.exchanges {
			if buy == sell {
				continue
			}

			// The pair is further limited by what the venues actually hold:
			// BTC to sell on the sell side, fiat to spend on the buy side.
			availableBtc := decimal.Min(maxBtc, sell.AvailableBtc)
			availableFiat := decimal.Min(maxFiat, buy.AvailableFiat.Sub(fiatSafetyMargin))

			if opp := h.CalculateOpportunity(buy, sell, availableBtc, availableFiat, minProfit, accountForTransferFee); opp != nil {
				opportunities = append(opportunities, opp)
			}
		}
	}

	if len(opportunities) == 0 {
		return nil
	}
	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].Profit.GreaterThan(opportunities[j].Profit)
	})
	return opportunities
}

// refreshBooks updates every exchange's book in parallel. A venue that fails
// to refresh gets a nil book and is skipped this round; the hunt goes on with
// the rest of the fleet.
func (h *Hunter) refreshBooks(ctx context.Context) {
	if h.refresher == nil {
		return
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, ex := range h.exchanges {
		g.Go(func() error {
			if err := h.refresher.Refresh(ctx, ex); err != nil {
				ex.Book = nil
				h.logger.Warn("order book refresh failed", "exchange", ex.Name, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

// CalculateOpportunity walks the buy exchange's asks against the sell
// exchange's bids, accumulating tiers while they cross and stay profitable.
// Returns nil when no opportunity clears the minimum profit and the venues'
// order floors.
func (h *Hunter) CalculateOpportunity(buyExchange, sellExchange *exchange.Exchange, availableBtc, availableFiat, minProfit decimal.Decimal, accountForTransferFee bool) *Opportunity {
	if buyExchange.Book == nil || buyExchange.Book.Asks == nil ||
		sellExchange.Book == nil || sellExchange.Book.Bids == nil {
		return nil
	}

	one := decimal.NewFromInt(1)
	buyFee := buyExchange.TradeFeeDecimal()
	feeInBtc := buyExchange.FeeCurrency == exchange.FeeInBtc

	asks := buyExchange.Book.Asks.Clone()
	bids := sellExchange.Book.Bids.Clone()

	var opp *Opportunity

	for len(bids) > 0 && len(asks) > 0 &&
		bids[0].Price().GreaterThan(asks[0].Price()) &&
		availableBtc.IsPositive() && availableFiat.GreaterThan(minUsableFiat) {

		ask, bid := asks[0], bids[0]

		// When the buy fee is taken in BTC the buy side has to overbuy by the
		// fee factor, so the ask is compared against the inflated bid.
		bidAmount := bid.Amount()
		if feeInBtc {
			bidAmount = bid.Amount().Mul(one.Add(buyFee))
		}

		var buyAmount decimal.Decimal
		var added bool
		switch {
		case ask.Amount().GreaterThan(bidAmount):
			// The bid runs out first.
			buyAmount = determineBuyAmount(availableBtc, ask, bid, availableFiat, buyFee, feeInBtc, true)
			added = h.addTier(buyAmount, buyExchange, sellExchange, &opp, ask, bid, &availableBtc, &availableFiat)
			if added {
				ask.SetAmount(ask.Amount().Sub(buyAmount))
				// The buy amount can exceed the bid amount when the buy fee
				// is taken in BTC.
				if buyAmount.GreaterThanOrEqual(bid.Amount()) {
					bids = bids[1:]
				}
			}
		case ask.Amount().LessThan(bidAmount):
			// The ask runs out first.
			buyAmount = determineBuyAmount(availableBtc, ask, bid, availableFiat, buyFee, feeInBtc, false)
			added = h.addTier(buyAmount, buyExchange, sellExchange, &opp, ask, bid, &availableBtc, &availableFiat)
			if added {
				bid.SetAmount(bid.Amount().Sub(buyAmount))
				if buyAmount.GreaterThanOrEqual(ask.Amount()) {
					asks = asks[1:]
				}
			}
		default:
			// Both run out together.
			buyAmount = determineBuyAmount(availableBtc, ask, bid, availableFiat, buyFee, feeInBtc, false)
			added = h.addTier(buyAmount, buyExchange, sellExchange, &opp, ask, bid, &availableBtc, &availableFiat)
			if added && buyAmount.GreaterThanOrEqual(ask.Amount()) {
				bids = bids[1:]
				asks = asks[1:]
			}
		}

		if !added {
			break
		}
	}

	if opp == nil {
		return nil
	}

	opp.CalculateCosts()

	if accountForTransferFee {
		// The trade strands BTC on the buy exchange that later has to be
		// moved; price that withdrawal at the average of the two limit
		// prices.
		averageCost := opp.BuyPrice.Add(opp.SellPrice).Div(decimal.NewFromInt(2))
		opp.Profit = opp.Profit.Sub(buyExchange.BtcTransferFee.Mul(averageCost))
	}

	if opp.Profit.GreaterThanOrEqual(minProfit) &&
		buyExchange.IsOrderCostValid(opp.BuyAmount, opp.TotalBuyCost) &&
		sellExchange.IsOrderCostValid(opp.SellAmount, opp.TotalSellCost) {
		return opp
	}
	return nil
}

// addTier prices one tier. If it adds enough profit the opportunity grows by
// the tier's buy and sell orders and the remaining BTC and fiat shrink; a
// false return means the tier is not worth taking and the walk should stop.
func (h *Hunter) addTier(tradeAmount decimal.Decimal, buyExchange, sellExchange *exchange.Exchange, opp **Opportunity, ask, bid *book.Order, availableBtc, availableFiat *decimal.Decimal) bool {
	one := decimal.NewFromInt(1)

	var sellAmount, buyCost decimal.Decimal
	if buyExchange.FeeCurrency == exchange.FeeInBtc {
		// The venue keeps its fee in BTC, so less arrives to sell.
		sellAmount = tradeAmount.Mul(one.Sub(buyExchange.TradeFeeDecimal()))
		buyCost = tradeAmount.Mul(ask.Price())
	} else {
		sellAmount = tradeAmount
		buyCost = one.Add(buyExchange.TradeFeeDecimal()).Mul(tradeAmount.Mul(ask.Price()))
	}

	sellCost := one.Sub(sellExchange.TradeFeeDecimal()).Mul(sellAmount.Mul(bid.Price()))
	profit := sellCost.Sub(buyCost)

	if !profit.GreaterThan(minTierProfit) {
		return false
	}

	if *opp == nil {
		*opp = NewOpportunity(buyExchange, sellExchange)
	}
	(*opp).AddBuyOrder(book.NewOrder(tradeAmount, ask.Price()))
	(*opp).AddSellOrder(book.NewOrder(sellAmount, bid.Price()))

	*availableBtc = availableBtc.Sub(tradeAmount)
	*availableFiat = availableFiat.Sub(buyCost)

	return true
}

// determineBuyAmount works out how much BTC to buy for one tier, limited by
// the constraining order side, the BTC available to sell and the fiat
// available to spend. The result is floored to eight decimal places.
func determineBuyAmount(availableBtc decimal.Decimal, ask, bid *book.Order, availableFiat, buyFee decimal.Decimal, feeInBtc, limitedByBid bool) decimal.Decimal {
	one := decimal.NewFromInt(1)

	var buyAmount decimal.Decimal
	switch {
	case feeInBtc && limitedByBid:
		// Overbuy by the fee factor so the fee-reduced amount matches the
		// sell side.
		if availableBtc.GreaterThanOrEqual(bid.Amount()) {
			buyAmount = bid.Amount().Mul(one.Add(buyFee))
		} else {
			buyAmount = availableBtc.Mul(one.Add(buyFee))
		}
	case !limitedByBid:
		buyAmount = decimal.Min(availableBtc, ask.Amount())
	default:
		buyAmount = decimal.Min(availableBtc, bid.Amount())
	}

	var cost decimal.Decimal
	if feeInBtc {
		cost = buyAmount.Mul(ask.Price())
	} else {
		cost = buyAmount.Mul(ask.Price()).Mul(buyFee.Add(one))
	}

	// Not enough fiat to take the full amount; recompute from what is left.
	if cost.GreaterThan(availableFiat) {
		if feeInBtc {
			buyAmount = availableFiat.Div(ask.Price())
		} else {
			buyAmount = availableFiat.Div(ask.Price().Mul(buyFee.Add(one)))
		}
	}

	return buyAmount.RoundFloor(8)
}
