package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"coinarb/internal/exchange"
)

// Simulated transfers take this long to confirm.
const transferTime = 60 * time.Minute

var (
	// ErrNotEnoughBtc means the origin exchange cannot cover a transfer
	// right now. Callers may retry once in-flight transfers have landed.
	ErrNotEnoughBtc = errors.New("not enough btc for transfer")
	// ErrInvalidTransfer covers nil exchanges and non-positive amounts.
	ErrInvalidTransfer = errors.New("invalid transfer")
)

// RollupGroup is a set of executed trades sharing a buy and sell exchange
// that have not yet been covered by a transfer.
type RollupGroup struct {
	BuyExchange  string
	SellExchange string
	TradeCount   int
	Amount       decimal.Decimal
}

// Store is the persistence the manager needs: saving transfers, finding
// trades awaiting a rollup and stamping them with the transfer that covers
// them.
type Store interface {
	SaveTransfer(ctx context.Context, t *Transfer) error
	PendingRollupGroups(ctx context.Context, runID int64) ([]RollupGroup, error)
	AssignTransferToTrades(ctx context.Context, runID int64, buyExchange, sellExchange string, transferID int64) error
}

// Manager executes and settles BTC transfers between exchanges.
type Manager struct {
	store     Store
	exchanges []*exchange.Exchange
	logger    *slog.Logger
}

// NewManager creates a Manager over the given exchange fleet.
func NewManager(store Store, exchanges []*exchange.Exchange, logger *slog.Logger) *Manager {
	return &Manager{store: store, exchanges: exchanges, logger: logger}
}

// OnTimeTransfer starts a transfer of amount BTC from origin to destination.
// The amount leaves the origin immediately; the destination carries it as
// in-transfer, less the origin's fee, until completion. The transfer is
// persisted before it is returned.
func (m *Manager) OnTimeTransfer(ctx context.Context, origin, destination *exchange.Exchange, amount decimal.Decimal) (*Transfer, error) {
	t, err := m.buildTransfer(origin, destination, amount)
	if err != nil {
		return nil, err
	}

	origin.AvailableBtc = origin.AvailableBtc.Sub(amount)
	destination.BtcInTransfer = destination.BtcInTransfer.Add(amount.Sub(origin.BtcTransferFee))

	if err := m.store.SaveTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("saving transfer: %w", err)
	}

	m.logger.Info("executed transfer",
		"id", t.ID, "amount", t.Amount, "origin", origin.Name, "destination", destination.Name)
	return t, nil
}

// CompleteTransfers settles every transfer in the list whose completion time
// has passed: the in-flight amount lands in the destination's available BTC,
// the transfer is marked completed and persisted, and it is removed from the
// list in place.
func (m *Manager) CompleteTransfers(ctx context.Context, transfers *[]*Transfer) error {
	if transfers == nil || len(*transfers) == 0 {
		return nil
	}
	now := time.Now()

	remaining := (*transfers)[:0]
	for _, t := range *transfers {
		// Transfers with no completion time yet are left alone.
		if t.CompleteAt.IsZero() || !t.CompleteAt.Before(now) {
			remaining = append(remaining, t)
			continue
		}

		// The fee was already deducted when the transfer was initiated.
		moveAmount := t.Amount.Sub(t.Origin.BtcTransferFee)
		t.Destination.BtcInTransfer = t.Destination.BtcInTransfer.Sub(moveAmount)
		t.Destination.AvailableBtc = t.Destination.AvailableBtc.Add(moveAmount)
		t.Completed = true

		if err := m.store.SaveTransfer(ctx, t); err != nil {
			return fmt.Errorf("saving completed transfer %d: %w", t.ID, err)
		}
		m.logger.Info("completed transfer",
			"id", t.ID, "amount", t.Amount, "origin", t.Origin.Name, "destination", t.Destination.Name)
	}
	*transfers = remaining
	return nil
}

// DetectAndExecuteRollups finds groups of executed trades in the run not yet
// covered by a transfer, grouped by buy and sell exchange. Each group that
// has reached rollupCount trades gets one consolidated transfer for the
// summed amount, and its trades are stamped with the transfer id.
//
// A group whose origin cannot cover the amount is skipped when the shortfall
// is only BTC still in transfer; the group is picked up again on a later
// round. A genuine shortfall is an error. Nil is returned when nothing was
// executed.
func (m *Manager) DetectAndExecuteRollups(ctx context.Context, rollupCount int, runID int64) ([]*Transfer, error) {
	if rollupCount <= 0 {
		return nil, fmt.Errorf("%w: rollup count must be greater than zero", ErrInvalidTransfer)
	}

	groups, err := m.store.PendingRollupGroups(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("finding rollup groups: %w", err)
	}

	var executed []*Transfer
	for _, group := range groups {
		if group.TradeCount < rollupCount {
			continue
		}

		origin, err := m.exchangeByName(group.BuyExchange)
		if err != nil {
			return executed, err
		}
		destination, err := m.exchangeByName(group.SellExchange)
		if err != nil {
			return executed, err
		}

		t, err := m.OnTimeTransfer(ctx, origin, destination, group.Amount)
		if errors.Is(err, ErrNotEnoughBtc) {
			// Fine as long as the missing BTC is merely in transit; the
			// rollup will be retried once those transfers land.
			if origin.AvailableBtc.Add(origin.BtcInTransfer).GreaterThanOrEqual(group.Amount) {
				continue
			}
			return executed, err
		}
		if err != nil {
			return executed, err
		}

		if err := m.store.AssignTransferToTrades(ctx, runID, group.BuyExchange, group.SellExchange, t.ID); err != nil {
			return executed, fmt.Errorf("assigning transfer %d to trades: %w", t.ID, err)
		}
		executed = append(executed, t)
	}
	return executed, nil
}

func (m *Manager) buildTransfer(origin, destination *exchange.Exchange, amount decimal.Decimal) (*Transfer, error) {
	if origin == nil {
		return nil, fmt.Errorf("%w: origin exchange cannot be nil", ErrInvalidTransfer)
	}
	if destination == nil {
		return nil, fmt.Errorf("%w: destination exchange cannot be nil", ErrInvalidTransfer)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidTransfer)
	}
	if origin.AvailableBtc.LessThan(amount) {
		return nil, fmt.Errorf("%w: %s holds %s, cannot send %s",
			ErrNotEnoughBtc, origin.Name, origin.AvailableBtc, amount)
	}

	now := time.Now()
	return &Transfer{
		Amount:      amount,
		Origin:      origin,
		Destination: destination,
		InitiatedAt: now,
		CompleteAt:  now.Add(transferTime),
	}, nil
}

func (m *Manager) exchangeByName(name string) (*exchange.Exchange, error) {
	for _, ex := range m.exchanges {
		if ex.Name == name {
			return ex, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown exchange %s", ErrInvalidTransfer, name)
}
