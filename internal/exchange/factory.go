package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func places(n int32) *int32 { return &n }

var defaultTransferFee = decimal.RequireFromString("0.0005")

// Preset returns the built-in configuration for a known venue. Balances and
// fees can be overridden from the application config afterwards.
func Preset(name string) (Config, error) {
	switch name {
	case "kraken":
		return Config{
			Name:                "kraken",
			TradeFeePercent:     decimal.RequireFromString("0.25"),
			BtcTransferFee:      defaultTransferFee,
			AmountDecimalPlaces: 8,
			CostDecimalPlaces:   places(5),
			FeeCurrency:         FeeInFiat,
		}, nil
	case "bitstamp":
		return Config{
			Name:                "bitstamp",
			TradeFeePercent:     decimal.RequireFromString("0.25"),
			BtcTransferFee:      defaultTransferFee,
			AmountDecimalPlaces: 8,
			CostDecimalPlaces:   places(2),
			FeeCurrency:         FeeInFiat,
		}, nil
	case "itbit":
		return Config{
			Name:                "itbit",
			TradeFeePercent:     decimal.RequireFromString("0.25"),
			BtcTransferFee:      defaultTransferFee,
			AmountDecimalPlaces: 4,
			CostDecimalPlaces:   places(4),
			FeeCurrency:         FeeInFiat,
		}, nil
	case "btce":
		return Config{
			Name:                  "btce",
			TradeFeePercent:       decimal.RequireFromString("0.2"),
			BtcTransferFee:        defaultTransferFee,
			AmountDecimalPlaces:   8,
			CostDecimalPlaces:     places(8),
			FeeCurrency:           FeeInBtc,
			OrdersFillImmediately: true,
		}, nil
	case "anx":
		return Config{
			Name:                "anx",
			TradeFeePercent:     decimal.RequireFromString("0.3"),
			BtcTransferFee:      defaultTransferFee,
			AmountDecimalPlaces: 8,
			FeeCurrency:         FeeInBtc,
		}, nil
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownExchange, name)
	}
}
