package arbitrage

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"coinarb/internal/exchange"
)

// MostProfitableTrade returns the opportunity with the largest profit, the
// first one when profits tie. Nil or empty input yields nil.
func MostProfitableTrade(opportunities []*Opportunity) *Opportunity {
	if len(opportunities) == 0 {
		return nil
	}
	best := opportunities[0]
	for _, opp := range opportunities[1:] {
		if opp.Profit.GreaterThan(best.Profit) {
			best = opp
		}
	}
	return best
}

// TradeForExchangeWithLowestBtc encourages distribution: it picks the most
// profitable opportunity that sells on the exchange holding the least BTC,
// provided that exchange can cover the buy amount. Falls back through
// exchanges in ascending BTC order; nil when no opportunity matches.
func TradeForExchangeWithLowestBtc(opportunities []*Opportunity, exchanges []*exchange.Exchange) (*Opportunity, error) {
	if opportunities == nil || exchanges == nil {
		return nil, fmt.Errorf("%w: opportunities and exchanges cannot be nil", ErrMissingArgument)
	}
	if len(opportunities) == 0 {
		return nil, nil
	}

	orderedExchanges := make([]*exchange.Exchange, len(exchanges))
	copy(orderedExchanges, exchanges)
	sort.SliceStable(orderedExchanges, func(i, j int) bool {
		return orderedExchanges[i].AvailableBtc.LessThan(orderedExchanges[j].AvailableBtc)
	})

	orderedOpportunities := sortByProfitDescending(opportunities)

	for _, ex := range orderedExchanges {
		for _, opp := range orderedOpportunities {
			if opp.SellExchange == ex && ex.AvailableBtc.GreaterThanOrEqual(opp.BuyAmount) {
				return opp, nil
			}
		}
	}
	return nil, nil
}

// MostProfitableTradeWithPercentRestriction caps how much of the fleet's
// fiat any one exchange may hold. The most profitable opportunity whose sell
// proceeds would keep the sell exchange at or under the restriction wins;
// nil when none qualify. The restriction is a fraction between 0 and 1
// inclusive.
func MostProfitableTradeWithPercentRestriction(opportunities []*Opportunity, exchanges []*exchange.Exchange, restriction decimal.Decimal) (*Opportunity, error) {
	if opportunities == nil || exchanges == nil {
		return nil, fmt.Errorf("%w: opportunities and exchanges cannot be nil", ErrMissingArgument)
	}
	one := decimal.NewFromInt(1)
	if restriction.GreaterThan(one) || restriction.IsNegative() {
		return nil, fmt.Errorf("%w: percent restriction must be between 0 and 1 inclusive, got %s", ErrOutOfRange, restriction)
	}
	if len(opportunities) == 0 || len(exchanges) == 0 {
		return nil, nil
	}

	totalFiat := decimal.Zero
	for _, ex := range exchanges {
		totalFiat = totalFiat.Add(ex.AvailableFiat)
	}
	if !totalFiat.IsPositive() {
		return nil, fmt.Errorf("%w: exchanges hold no fiat to restrict against", ErrOutOfRange)
	}

	for _, opp := range sortByProfitDescending(opportunities) {
		share := opp.SellExchange.AvailableFiat.Add(opp.TotalSellCost).Div(totalFiat)
		if share.LessThanOrEqual(restriction) {
			return opp, nil
		}
	}
	return nil, nil
}

func sortByProfitDescending(opportunities []*Opportunity) []*Opportunity {
	out := make([]*Opportunity, len(opportunities))
	copy(out, opportunities)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Profit.GreaterThan(out[j].Profit)
	})
	return out
}
