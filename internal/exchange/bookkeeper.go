package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"coinarb/internal/book"
)

// BookKeeper collects the latest order book snapshot from each venue's feed
// and hands fresh copies to the hunting loop.
type BookKeeper struct {
	logger *slog.Logger

	mu    sync.RWMutex
	books map[string]*book.OrderBook
}

// NewBookKeeper creates an empty BookKeeper.
func NewBookKeeper(logger *slog.Logger) *BookKeeper {
	return &BookKeeper{logger: logger, books: make(map[string]*book.OrderBook)}
}

// Watch runs a feed in the background and keeps its latest snapshot until
// the context is cancelled.
func (k *BookKeeper) Watch(ctx context.Context, feed Feed, pair string) {
	snapshots := make(chan Snapshot, 1)

	go func() {
		if err := feed.StartBookStream(ctx, snapshots, pair); err != nil {
			k.logger.Error("book stream ended", "exchange", feed.Name(), "error", err)
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snapshots:
				k.mu.Lock()
				k.books[s.Exchange] = s.Book
				k.mu.Unlock()
			}
		}
	}()
}

// Refresh copies the venue's latest snapshot onto the exchange. An error
// means no snapshot has arrived yet; the venue sits out this round.
func (k *BookKeeper) Refresh(_ context.Context, ex *Exchange) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	latest, ok := k.books[ex.Name]
	if !ok {
		return fmt.Errorf("no order book received yet for %s", ex.Name)
	}
	ex.Book = latest.Clone()
	return nil
}
