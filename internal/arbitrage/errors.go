package arbitrage

import "errors"

var (
	// ErrMissingArgument is returned when a required argument is nil.
	ErrMissingArgument = errors.New("missing argument")
	// ErrOutOfRange is returned when an argument is outside its valid range.
	ErrOutOfRange = errors.New("argument out of range")
	// ErrTradeValidation is returned when an executed trade does not check
	// out against exchange balances or order status.
	ErrTradeValidation = errors.New("trade validation failed")
)
