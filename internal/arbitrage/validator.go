package arbitrage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"coinarb/internal/exchange"
)

// Balance and profit checks allow this much relative drift before an
// executed trade is declared invalid.
var balanceTolerance = decimal.RequireFromString("0.02")

type streak struct {
	opportunity   *Opportunity
	roundsExisted int
	updated       bool
}

type balances struct {
	fiat decimal.Decimal
	btc  decimal.Decimal
}

// Validator requires an opportunity to survive a number of consecutive
// hunting rounds before it may be executed, and checks executed trades
// against the exchanges' balances and order status.
type Validator struct {
	RoundsRequired int

	exchanges  []*exchange.Exchange
	streaks    map[string]*streak
	checkpoint map[string]balances
}

// NewValidator builds a Validator. roundsRequired must be positive.
func NewValidator(roundsRequired int, exchanges []*exchange.Exchange) (*Validator, error) {
	if roundsRequired <= 0 {
		return nil, fmt.Errorf("%w: rounds required for validation must be greater than zero", ErrOutOfRange)
	}
	return &Validator{
		RoundsRequired: roundsRequired,
		exchanges:      exchanges,
		streaks:        make(map[string]*streak),
	}, nil
}

// pairKey identifies an exchange pair regardless of trade direction.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// ValidateOpportunities folds one round of found opportunities into the
// running streaks and returns those whose pair has produced an opportunity
// for the required number of consecutive rounds, carrying each pair's latest
// numbers. The result is stably sorted by ascending profit. A pair that
// skips a round starts over.
func (v *Validator) ValidateOpportunities(opportunities []*Opportunity) []*Opportunity {
	for _, opp := range opportunities {
		key := pairKey(opp.BuyExchange.Name, opp.SellExchange.Name)
		if s, ok := v.streaks[key]; ok {
			s.opportunity = opp
			s.roundsExisted++
			s.updated = true
		} else {
			v.streaks[key] = &streak{opportunity: opp, roundsExisted: 1, updated: true}
		}
	}

	var validated []*Opportunity
	for key, s := range v.streaks {
		if !s.updated {
			// The pair produced nothing this round; its streak is broken.
			delete(v.streaks, key)
			continue
		}
		s.updated = false
		if s.roundsExisted >= v.RoundsRequired {
			validated = append(validated, s.opportunity)
		}
	}

	// Map iteration order is random, so equal profits tie-break on the pair
	// key to keep the output reproducible.
	sort.SliceStable(validated, func(i, j int) bool {
		if !validated[i].Profit.Equal(validated[j].Profit) {
			return validated[i].Profit.LessThan(validated[j].Profit)
		}
		return pairKey(validated[i].BuyExchange.Name, validated[i].SellExchange.Name) <
			pairKey(validated[j].BuyExchange.Name, validated[j].SellExchange.Name)
	})
	return validated
}

// CheckpointBalances records every exchange's fiat and BTC balances so an
// upcoming trade can be verified against them.
func (v *Validator) CheckpointBalances() {
	v.checkpoint = make(map[string]balances, len(v.exchanges))
	for _, ex := range v.exchanges {
		v.checkpoint[ex.Name] = balances{fiat: ex.AvailableFiat, btc: ex.AvailableBtc}
	}
}

// ValidateExchangeBalances verifies that an executed trade actually moved the
// balances it claimed to: the buy exchange spent the total buy cost and
// gained the buy amount, the sell exchange gave up the sell amount and gained
// the total sell cost, each within tolerance of the checkpoint taken before
// the trade.
func (v *Validator) ValidateExchangeBalances(trade *Opportunity) error {
	if trade == nil {
		return fmt.Errorf("%w: trade cannot be nil", ErrMissingArgument)
	}
	if v.checkpoint == nil {
		return fmt.Errorf("%w: no balance checkpoint was taken before the trade", ErrTradeValidation)
	}

	var problems []string

	buyBefore, ok := v.checkpoint[trade.BuyExchange.Name]
	if !ok {
		problems = append(problems, fmt.Sprintf("no checkpoint for buy exchange %s", trade.BuyExchange.Name))
	} else {
		problems = appendDeltaProblem(problems, trade.BuyExchange.Name, "fiat",
			trade.BuyExchange.AvailableFiat.Sub(buyBefore.fiat), trade.TotalBuyCost.Neg())
		problems = appendDeltaProblem(problems, trade.BuyExchange.Name, "btc",
			trade.BuyExchange.AvailableBtc.Sub(buyBefore.btc), trade.BuyAmount)
	}

	sellBefore, ok := v.checkpoint[trade.SellExchange.Name]
	if !ok {
		problems = append(problems, fmt.Sprintf("no checkpoint for sell exchange %s", trade.SellExchange.Name))
	} else {
		problems = appendDeltaProblem(problems, trade.SellExchange.Name, "fiat",
			trade.SellExchange.AvailableFiat.Sub(sellBefore.fiat), trade.TotalSellCost)
		problems = appendDeltaProblem(problems, trade.SellExchange.Name, "btc",
			trade.SellExchange.AvailableBtc.Sub(sellBefore.btc), trade.SellAmount.Neg())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrTradeValidation, strings.Join(problems, "; "))
	}
	return nil
}

func appendDeltaProblem(problems []string, name, currency string, actual, expected decimal.Decimal) []string {
	tolerance := expected.Abs().Mul(balanceTolerance)
	if actual.Sub(expected).Abs().GreaterThan(tolerance) {
		problems = append(problems, fmt.Sprintf("%s %s moved by %s, expected %s",
			name, currency, actual, expected))
	}
	return problems
}

// ValidateOrderExecution confirms both legs of an executed trade were filled.
// Venues whose orders fill immediately report the sentinel order id and are
// not queried; legs without a live order or status checker are skipped.
func (v *Validator) ValidateOrderExecution(ctx context.Context, trade *Opportunity) error {
	if trade == nil {
		return fmt.Errorf("%w: trade cannot be nil", ErrMissingArgument)
	}

	var problems []string

	if leg, err := orderFulfilled(ctx, trade.SellExchange, trade.SellOrderID); err != nil {
		return err
	} else if !leg {
		problems = append(problems, "sell order did not get filled")
	}

	if leg, err := orderFulfilled(ctx, trade.BuyExchange, trade.BuyOrderID); err != nil {
		return err
	} else if !leg {
		problems = append(problems, "buy order did not get filled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrTradeValidation, strings.Join(problems, "; "))
	}
	return nil
}

func orderFulfilled(ctx context.Context, ex *exchange.Exchange, orderID string) (bool, error) {
	if ex.OrdersFillImmediately && orderID == exchange.ImmediateFillOrderID {
		return true, nil
	}
	if orderID == "" || ex.StatusChecker == nil {
		return true, nil
	}
	return ex.StatusChecker.IsOrderFulfilled(ctx, orderID)
}
