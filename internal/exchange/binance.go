package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"coinarb/internal/book"
)

// BinanceFeed streams order book snapshots from the Binance WebSocket API.
type BinanceFeed struct {
	logger *slog.Logger
}

// NewBinanceFeed creates a new BinanceFeed.
func NewBinanceFeed(logger *slog.Logger) *BinanceFeed {
	return &BinanceFeed{logger: logger}
}

func (b *BinanceFeed) Name() string {
	return "binance"
}

// StartBookStream connects to the Binance partial depth stream for the given
// pair and publishes a snapshot per message. Reconnects with doubling backoff
// until the context is cancelled.
func (b *BinanceFeed) StartBookStream(ctx context.Context, books chan<- Snapshot, pair string) error {
	symbol := strings.ToLower(strings.ReplaceAll(pair, "/", ""))
	wsURL := fmt.Sprintf("wss://stream.binance.com:9443/ws/%s@depth20@100ms", symbol)
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("BinanceFeed: context cancelled, shutting down")
			return nil
		default:
		}

		b.logger.Info("BinanceFeed: connecting to WebSocket", "url", wsURL, "backoff", backoff)
		c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			b.logger.Error("BinanceFeed: WebSocket connection failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > 16*time.Second {
					backoff = 16 * time.Second
				}
			}
			continue
		}

		// Reset backoff on successful connection
		backoff = time.Second
		b.logger.Info("BinanceFeed: connected successfully")

		if err := b.readLoop(ctx, c, books); err != nil {
			b.logger.Error("BinanceFeed: stream ended, reconnecting", "error", err)
			c.Close()
			continue
		}
		c.Close()
		return nil
	}
}

func (b *BinanceFeed) readLoop(ctx context.Context, c *websocket.Conn, books chan<- Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("BinanceFeed: context cancelled, closing connection")
			return nil
		default:
		}

		_, message, err := c.ReadMessage()
		if err != nil {
			return err
		}

		var depth struct {
			Bids [][]string `json:"bids"`
			Asks [][]string `json:"asks"`
		}
		if err := json.Unmarshal(message, &depth); err != nil {
			b.logger.Warn("BinanceFeed: failed to parse message", "error", err)
			continue
		}

		snapshot := &book.OrderBook{
			Asks: b.parseLevels(depth.Asks),
			Bids: b.parseLevels(depth.Bids),
		}
		snapshot.Normalize()

		select {
		case books <- Snapshot{Exchange: b.Name(), Book: snapshot}:
		case <-ctx.Done():
			b.logger.Info("BinanceFeed: context cancelled while sending snapshot")
			return nil
		}
	}
}

func (b *BinanceFeed) parseLevels(levels [][]string) book.OrderList {
	var out book.OrderList
	for _, level := range levels {
		if len(level) < 2 {
			continue
		}
		price, err := decimal.NewFromString(level[0])
		if err != nil {
			b.logger.Warn("BinanceFeed: failed to parse price", "error", err)
			continue
		}
		amount, err := decimal.NewFromString(level[1])
		if err != nil {
			b.logger.Warn("BinanceFeed: failed to parse amount", "error", err)
			continue
		}
		if amount.IsZero() {
			continue
		}
		out = append(out, book.NewOrder(amount, price))
	}
	return out
}
