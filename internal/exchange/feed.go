package exchange

import (
	"context"
	"fmt"
	"log/slog"

	"coinarb/internal/book"
)

// Snapshot is a fresh order book for one venue.
type Snapshot struct {
	Exchange string
	Book     *book.OrderBook
}

// Feed streams order book snapshots for a venue.
type Feed interface {
	Name() string
	StartBookStream(ctx context.Context, books chan<- Snapshot, pair string) error
}

// OrderStatusChecker looks up whether a live order has been filled.
// Simulation runs operate without one.
type OrderStatusChecker interface {
	IsOrderFulfilled(ctx context.Context, orderID string) (bool, error)
}

// NewFeed creates the order book feed for the given venue name.
func NewFeed(name string, logger *slog.Logger) (Feed, error) {
	switch name {
	case "kraken":
		return NewKrakenFeed(logger), nil
	case "binance":
		return NewBinanceFeed(logger), nil
	default:
		return nil, fmt.Errorf("%w: no book feed for %s", ErrUnknownExchange, name)
	}
}
