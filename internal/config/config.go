package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Run       RunConfig
	Database  DatabaseConfig
	Exchanges map[string]ExchangeConfig
}

// RunConfig defines the arbitration session settings. Money values are
// decimal strings so no precision is lost on the way in.
type RunConfig struct {
	Mode                   string   `mapstructure:"mode"`
	Pair                   string   `mapstructure:"pair"`
	FiatCurrency           string   `mapstructure:"fiat_currency"`
	MinimumProfit          string   `mapstructure:"minimum_profit"`
	MaxBtcPerTrade         string   `mapstructure:"max_btc_per_trade"`
	MaxFiatPerTrade        string   `mapstructure:"max_fiat_per_trade"`
	PercentRestriction     string   `mapstructure:"percent_restriction"`
	RollupTradeCount       int      `mapstructure:"rollup_trade_count"`
	RollupHours            string   `mapstructure:"rollup_hours"`
	SearchIntervalMS       int      `mapstructure:"search_interval_ms"`
	RoundsRequired         int      `mapstructure:"rounds_required"`
	AccountForTransferFees bool     `mapstructure:"account_for_transfer_fees"`
	SelectionPolicy        string   `mapstructure:"selection_policy"`
	TransferMode           string   `mapstructure:"transfer_mode"`
	Exchanges              []string `mapstructure:"exchanges"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// ExchangeConfig overrides a venue's preset fees and starting balances.
type ExchangeConfig struct {
	TradeFeePercent string `mapstructure:"trade_fee_percent"`
	BtcTransferFee  string `mapstructure:"btc_transfer_fee"`
	InitialBtc      string `mapstructure:"initial_btc"`
	InitialFiat     string `mapstructure:"initial_fiat"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
