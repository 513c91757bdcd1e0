package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSetTradeFee(t *testing.T) {
	ex := New(Config{Name: "kraken", TradeFeePercent: d("0.25")})
	assert.True(t, ex.TradeFeePercent().Equal(d("0.25")))
	assert.True(t, ex.TradeFeeDecimal().Equal(d("0.0025")))

	ex.SetTradeFee(d("0.5"))
	assert.True(t, ex.TradeFeeDecimal().Equal(d("0.005")))
}

func TestApplyFees(t *testing.T) {
	t.Run("fiat fee venue adds the fee to buys", func(t *testing.T) {
		places := int32(5)
		ex := New(Config{
			Name:              "kraken",
			TradeFeePercent:   d("0.25"),
			FeeCurrency:       FeeInFiat,
			CostDecimalPlaces: &places,
		})
		assert.True(t, ex.ApplyFeeToBuyCost(d("400")).Equal(d("401")))
		assert.True(t, ex.ApplyFeeToSellCost(d("400")).Equal(d("399")))
	})

	t.Run("btc fee venue charges the raw buy cost", func(t *testing.T) {
		places := int32(8)
		ex := New(Config{
			Name:              "btce",
			TradeFeePercent:   d("0.2"),
			FeeCurrency:       FeeInBtc,
			CostDecimalPlaces: &places,
		})
		assert.True(t, ex.ApplyFeeToBuyCost(d("400")).Equal(d("400")))
		assert.True(t, ex.ApplyFeeToSellCost(d("400")).Equal(d("399.2")))
	})
}

func TestRoundTotalCost(t *testing.T) {
	t.Run("rounds half to even at the configured precision", func(t *testing.T) {
		places := int32(2)
		ex := New(Config{Name: "bitstamp", CostDecimalPlaces: &places})
		assert.True(t, ex.RoundTotalCost(d("100.125")).Equal(d("100.12")))
		assert.True(t, ex.RoundTotalCost(d("100.135")).Equal(d("100.14")))
	})

	t.Run("no configured precision passes through", func(t *testing.T) {
		ex := New(Config{Name: "anx"})
		assert.True(t, ex.RoundTotalCost(d("100.628672913950")).Equal(d("100.62867291395")))
	})
}

func TestIsOrderCostValid(t *testing.T) {
	ex := New(Config{Name: "kraken"})
	assert.True(t, ex.IsOrderCostValid(d("0.6"), d("240")))
	assert.False(t, ex.IsOrderCostValid(d("0.6"), d("4.99")), "cost below the fiat floor")
	assert.False(t, ex.IsOrderCostValid(d("0.000009"), d("240")), "amount below the btc floor")
}

func TestSimulatedTrades(t *testing.T) {
	t.Run("buy moves fiat to btc", func(t *testing.T) {
		ex := New(Config{Name: "kraken", InitialBtc: d("1"), InitialFiat: d("500")})
		require.NoError(t, ex.SimulatedBuy(d("0.6"), d("240")))
		assert.True(t, ex.AvailableBtc.Equal(d("1.6")))
		assert.True(t, ex.AvailableFiat.Equal(d("260")))
	})

	t.Run("buy with insufficient fiat", func(t *testing.T) {
		ex := New(Config{Name: "kraken", InitialFiat: d("100")})
		err := ex.SimulatedBuy(d("0.6"), d("240"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, ex.AvailableFiat.Equal(d("100")), "balances must not move")
	})

	t.Run("sell moves btc to fiat", func(t *testing.T) {
		ex := New(Config{Name: "bitstamp", InitialBtc: d("1"), InitialFiat: d("500")})
		require.NoError(t, ex.SimulatedSell(d("0.6"), d("240.6")))
		assert.True(t, ex.AvailableBtc.Equal(d("0.4")))
		assert.True(t, ex.AvailableFiat.Equal(d("740.6")))
	})

	t.Run("sell with insufficient btc", func(t *testing.T) {
		ex := New(Config{Name: "bitstamp", InitialBtc: d("0.1")})
		err := ex.SimulatedSell(d("0.6"), d("240.6"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, ex.AvailableBtc.Equal(d("0.1")), "balances must not move")
	})
}

func TestPreset(t *testing.T) {
	t.Run("known venues", func(t *testing.T) {
		for _, name := range []string{"kraken", "bitstamp", "itbit", "btce", "anx"} {
			cfg, err := Preset(name)
			require.NoError(t, err, name)
			assert.Equal(t, name, cfg.Name)
		}
	})

	t.Run("btce orders fill immediately", func(t *testing.T) {
		cfg, err := Preset("btce")
		require.NoError(t, err)
		assert.True(t, cfg.OrdersFillImmediately)
		assert.Equal(t, FeeInBtc, cfg.FeeCurrency)
	})

	t.Run("unknown venue", func(t *testing.T) {
		_, err := Preset("mtgox")
		assert.ErrorIs(t, err, ErrUnknownExchange)
	})
}
