package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"coinarb/internal/arbitrage"
	"coinarb/internal/transfer"
)

// ErrTradeWithoutRun is returned when a trade is saved before its run.
var ErrTradeWithoutRun = errors.New("trade must belong to a persisted run")

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects a repository to the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

// Migrate creates the schema if it does not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS arbitration_runs (
		id BIGSERIAL PRIMARY KEY,
		minimum_profit NUMERIC(20, 8) NOT NULL,
		max_btc NUMERIC(20, 8) NOT NULL,
		max_fiat NUMERIC(20, 8) NOT NULL,
		percent_restriction NUMERIC(6, 5),
		rollup_trade_count INT,
		rollup_hours NUMERIC(10, 2),
		search_interval_ms BIGINT NOT NULL,
		rounds_required INT NOT NULL,
		account_for_transfer_fees BOOLEAN NOT NULL,
		mode VARCHAR(20) NOT NULL,
		selection_policy VARCHAR(30) NOT NULL,
		transfer_mode VARCHAR(30) NOT NULL,
		fiat_currency VARCHAR(10) NOT NULL,
		exchanges TEXT[] NOT NULL,
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_modified TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id BIGSERIAL PRIMARY KEY,
		origin_exchange VARCHAR(50) NOT NULL,
		destination_exchange VARCHAR(50) NOT NULL,
		amount NUMERIC(20, 8) NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		initiated_at TIMESTAMPTZ,
		complete_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_modified TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS arbitration_trades (
		id BIGSERIAL PRIMARY KEY,
		run_id BIGINT NOT NULL REFERENCES arbitration_runs(id),
		buy_exchange VARCHAR(50) NOT NULL,
		sell_exchange VARCHAR(50) NOT NULL,
		buy_amount NUMERIC(20, 8) NOT NULL,
		sell_amount NUMERIC(20, 8) NOT NULL,
		buy_price NUMERIC(20, 8) NOT NULL,
		sell_price NUMERIC(20, 8) NOT NULL,
		total_buy_cost NUMERIC(20, 8) NOT NULL,
		total_sell_cost NUMERIC(20, 8) NOT NULL,
		profit NUMERIC(20, 8) NOT NULL,
		buy_order_id VARCHAR(100),
		sell_order_id VARCHAR(100),
		transfer_id BIGINT REFERENCES transfers(id),
		executed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_modified TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// SaveRun inserts the run on first save and updates it afterwards. The
// repository assigns the id and maintains the timestamps.
func (r *PostgresRepository) SaveRun(ctx context.Context, run *arbitrage.Run) error {
	if run.ID == 0 {
		const insert = `
		INSERT INTO arbitration_runs (
			minimum_profit, max_btc, max_fiat, percent_restriction,
			rollup_trade_count, rollup_hours, search_interval_ms, rounds_required,
			account_for_transfer_fees, mode, selection_policy, transfer_mode,
			fiat_currency, exchanges, started_at, ended_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id, created_at, last_modified`

		return r.Pool.QueryRow(ctx, insert,
			run.MinimumProfit, run.MaxBtcPerTrade, run.MaxFiatPerTrade, run.PercentRestriction,
			nullInt(run.RollupTradeCount), run.RollupHours, run.SearchInterval.Milliseconds(), run.RoundsRequired,
			run.AccountForTransferFees, run.Mode, run.SelectionPolicy, run.TransferMode,
			run.FiatCurrency, run.Exchanges, nullTime(run.StartedAt), nullTime(run.EndedAt),
		).Scan(&run.ID, &run.CreatedAt, &run.ModifiedAt)
	}

	const update = `
	UPDATE arbitration_runs SET
		minimum_profit = $2, max_btc = $3, max_fiat = $4, percent_restriction = $5,
		rollup_trade_count = $6, rollup_hours = $7, search_interval_ms = $8, rounds_required = $9,
		account_for_transfer_fees = $10, mode = $11, selection_policy = $12, transfer_mode = $13,
		fiat_currency = $14, exchanges = $15, started_at = $16, ended_at = $17,
		last_modified = NOW()
	WHERE id = $1
	RETURNING last_modified`

	return r.Pool.QueryRow(ctx, update, run.ID,
		run.MinimumProfit, run.MaxBtcPerTrade, run.MaxFiatPerTrade, run.PercentRestriction,
		nullInt(run.RollupTradeCount), run.RollupHours, run.SearchInterval.Milliseconds(), run.RoundsRequired,
		run.AccountForTransferFees, run.Mode, run.SelectionPolicy, run.TransferMode,
		run.FiatCurrency, run.Exchanges, nullTime(run.StartedAt), nullTime(run.EndedAt),
	).Scan(&run.ModifiedAt)
}

// SaveTrade persists an executed opportunity under its run.
func (r *PostgresRepository) SaveTrade(ctx context.Context, trade *arbitrage.Opportunity) error {
	if trade.RunID == 0 {
		return ErrTradeWithoutRun
	}

	if trade.ID == 0 {
		const insert = `
		INSERT INTO arbitration_trades (
			run_id, buy_exchange, sell_exchange, buy_amount, sell_amount,
			buy_price, sell_price, total_buy_cost, total_sell_cost, profit,
			buy_order_id, sell_order_id, transfer_id, executed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id, created_at, last_modified`

		return r.Pool.QueryRow(ctx, insert,
			trade.RunID, trade.BuyExchange.Name, trade.SellExchange.Name,
			trade.BuyAmount, trade.SellAmount, trade.BuyPrice, trade.SellPrice,
			trade.TotalBuyCost, trade.TotalSellCost, trade.Profit,
			nullString(trade.BuyOrderID), nullString(trade.SellOrderID),
			nullInt64(trade.TransferID), nullTime(trade.ExecutedAt),
		).Scan(&trade.ID, &trade.CreatedAt, &trade.ModifiedAt)
	}

	const update = `
	UPDATE arbitration_trades SET
		buy_amount = $2, sell_amount = $3, buy_price = $4, sell_price = $5,
		total_buy_cost = $6, total_sell_cost = $7, profit = $8,
		buy_order_id = $9, sell_order_id = $10, transfer_id = $11, executed_at = $12,
		last_modified = NOW()
	WHERE id = $1
	RETURNING last_modified`

	return r.Pool.QueryRow(ctx, update, trade.ID,
		trade.BuyAmount, trade.SellAmount, trade.BuyPrice, trade.SellPrice,
		trade.TotalBuyCost, trade.TotalSellCost, trade.Profit,
		nullString(trade.BuyOrderID), nullString(trade.SellOrderID),
		nullInt64(trade.TransferID), nullTime(trade.ExecutedAt),
	).Scan(&trade.ModifiedAt)
}

// SaveTransfer persists a transfer, inserting on first save.
func (r *PostgresRepository) SaveTransfer(ctx context.Context, t *transfer.Transfer) error {
	if t.ID == 0 {
		const insert = `
		INSERT INTO transfers (
			origin_exchange, destination_exchange, amount, completed, initiated_at, complete_at
		) VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at, last_modified`

		return r.Pool.QueryRow(ctx, insert,
			t.Origin.Name, t.Destination.Name, t.Amount, t.Completed,
			nullTime(t.InitiatedAt), nullTime(t.CompleteAt),
		).Scan(&t.ID, &t.CreatedAt, &t.ModifiedAt)
	}

	const update = `
	UPDATE transfers SET
		amount = $2, completed = $3, initiated_at = $4, complete_at = $5,
		last_modified = NOW()
	WHERE id = $1
	RETURNING last_modified`

	return r.Pool.QueryRow(ctx, update, t.ID,
		t.Amount, t.Completed, nullTime(t.InitiatedAt), nullTime(t.CompleteAt),
	).Scan(&t.ModifiedAt)
}

// PendingRollupGroups finds the run's executed trades not yet covered by a
// transfer, grouped by buy and sell exchange with their summed buy amounts.
func (r *PostgresRepository) PendingRollupGroups(ctx context.Context, runID int64) ([]transfer.RollupGroup, error) {
	const query = `
	SELECT buy_exchange, sell_exchange, COUNT(*), SUM(buy_amount)
	FROM arbitration_trades
	WHERE run_id = $1 AND transfer_id IS NULL
	GROUP BY buy_exchange, sell_exchange
	ORDER BY buy_exchange, sell_exchange`

	rows, err := r.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying rollup groups: %w", err)
	}
	defer rows.Close()

	var groups []transfer.RollupGroup
	for rows.Next() {
		var g transfer.RollupGroup
		if err := rows.Scan(&g.BuyExchange, &g.SellExchange, &g.TradeCount, &g.Amount); err != nil {
			return nil, fmt.Errorf("scanning rollup group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// AssignTransferToTrades stamps every uncovered trade in the run between the
// two exchanges with the transfer that now covers it.
func (r *PostgresRepository) AssignTransferToTrades(ctx context.Context, runID int64, buyExchange, sellExchange string, transferID int64) error {
	const update = `
	UPDATE arbitration_trades
	SET transfer_id = $4, last_modified = NOW()
	WHERE run_id = $1 AND buy_exchange = $2 AND sell_exchange = $3 AND transfer_id IS NULL`

	_, err := r.Pool.Exec(ctx, update, runID, buyExchange, sellExchange, transferID)
	return err
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

func nullInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func nullInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
