// Package database persists runs, trades and transfers to Postgres.
package database

import (
	"context"

	"coinarb/internal/arbitrage"
	"coinarb/internal/transfer"
)

// Repository defines the standard interface for database operations.
type Repository interface {
	Migrate(ctx context.Context) error

	SaveRun(ctx context.Context, run *arbitrage.Run) error
	SaveTrade(ctx context.Context, trade *arbitrage.Opportunity) error

	SaveTransfer(ctx context.Context, t *transfer.Transfer) error
	PendingRollupGroups(ctx context.Context, runID int64) ([]transfer.RollupGroup, error)
	AssignTransferToTrades(ctx context.Context, runID int64, buyExchange, sellExchange string, transferID int64) error

	Close()
}
