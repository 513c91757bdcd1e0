package exchange

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinarb/internal/book"
)

type staticFeed struct {
	name     string
	snapshot Snapshot
}

func (f *staticFeed) Name() string { return f.name }

func (f *staticFeed) StartBookStream(ctx context.Context, books chan<- Snapshot, pair string) error {
	select {
	case books <- f.snapshot:
	case <-ctx.Done():
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestBookKeeperRefresh(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keeper := NewBookKeeper(logger)
	ex := New(Config{Name: "kraken"})

	t.Run("no snapshot yet", func(t *testing.T) {
		err := keeper.Refresh(ctx, ex)
		assert.Error(t, err)
	})

	t.Run("latest snapshot is copied onto the exchange", func(t *testing.T) {
		feed := &staticFeed{
			name: "kraken",
			snapshot: Snapshot{
				Exchange: "kraken",
				Book: &book.OrderBook{
					Asks: book.OrderList{book.NewOrder(d("1"), d("400"))},
					Bids: book.OrderList{book.NewOrder(d("1"), d("399"))},
				},
			},
		}
		keeper.Watch(ctx, feed, "BTC/USD")

		require.Eventually(t, func() bool {
			return keeper.Refresh(ctx, ex) == nil
		}, time.Second, 10*time.Millisecond)

		require.Len(t, ex.Book.Asks, 1)
		assert.True(t, ex.Book.Asks[0].Price().Equal(d("400")))

		// Each refresh hands out an independent copy.
		ex.Book.Asks[0].SetAmount(d("9"))
		other := New(Config{Name: "kraken"})
		require.NoError(t, keeper.Refresh(ctx, other))
		assert.True(t, other.Book.Asks[0].Amount().Equal(d("1")))
	})
}

func TestNewFeed(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	for _, name := range []string{"kraken", "binance"} {
		feed, err := NewFeed(name, logger)
		require.NoError(t, err, name)
		assert.Equal(t, name, feed.Name())
	}

	_, err := NewFeed("anx", logger)
	assert.ErrorIs(t, err, ErrUnknownExchange)
}
