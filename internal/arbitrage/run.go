package arbitrage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mode says whether trades hit real accounts or only simulated balances.
type Mode string

const (
	ModeLive       Mode = "live"
	ModeSimulation Mode = "simulation"
)

// SelectionPolicy picks which filter chooses among validated opportunities.
type SelectionPolicy string

const (
	SelectMostProfitable     SelectionPolicy = "most_profitable"
	SelectLowestBtcExchange  SelectionPolicy = "lowest_btc_exchange"
	SelectPercentRestriction SelectionPolicy = "percent_restriction"
)

// TransferMode controls how BTC bought during trades is moved back to the
// sell exchanges.
type TransferMode string

const (
	TransferOnTime         TransferMode = "on_time"
	TransferRollupOnTrades TransferMode = "rollup_on_trades"
	TransferRollupByHour   TransferMode = "rollup_by_hour"
	TransferNone           TransferMode = "none"
)

// Run is one arbitration session: its limits, policies and lifetime. Every
// executed trade and transfer is tied to a run.
type Run struct {
	ID int64

	MinimumProfit   decimal.Decimal
	MaxBtcPerTrade  decimal.Decimal
	MaxFiatPerTrade decimal.Decimal

	// PercentRestriction only applies under SelectPercentRestriction.
	PercentRestriction *decimal.Decimal

	// RollupTradeCount only applies under TransferRollupOnTrades,
	// RollupHours only under TransferRollupByHour.
	RollupTradeCount int
	RollupHours      decimal.Decimal

	SearchInterval         time.Duration
	RoundsRequired         int
	AccountForTransferFees bool

	Mode            Mode
	SelectionPolicy SelectionPolicy
	TransferMode    TransferMode
	FiatCurrency    string
	Exchanges       []string

	StartedAt  time.Time
	EndedAt    time.Time
	CreatedAt  time.Time
	ModifiedAt time.Time
}
