// Package transfer moves BTC bought during arbitration trades back to the
// exchanges it was sold from, either per trade or rolled up across several.
package transfer

import (
	"time"

	"github.com/shopspring/decimal"

	"coinarb/internal/exchange"
)

// Transfer is one movement of BTC between two exchanges. The amount is what
// leaves the origin; the origin's transfer fee is lost on the way.
type Transfer struct {
	ID     int64
	Amount decimal.Decimal

	Origin      *exchange.Exchange
	Destination *exchange.Exchange

	Completed   bool
	InitiatedAt time.Time
	CompleteAt  time.Time
	CreatedAt   time.Time
	ModifiedAt  time.Time
}
