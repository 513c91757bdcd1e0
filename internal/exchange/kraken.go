package exchange

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"coinarb/internal/book"
)

const krakenBookDepth = 25

// KrakenFeed maintains a live order book from the Kraken WebSocket API.
type KrakenFeed struct {
	logger *slog.Logger

	asks map[string]decimal.Decimal
	bids map[string]decimal.Decimal
}

// NewKrakenFeed creates a new KrakenFeed.
func NewKrakenFeed(logger *slog.Logger) *KrakenFeed {
	return &KrakenFeed{
		logger: logger,
		asks:   make(map[string]decimal.Decimal),
		bids:   make(map[string]decimal.Decimal),
	}
}

func (k *KrakenFeed) Name() string {
	return "kraken"
}

// StartBookStream connects to the Kraken WebSocket API, subscribes to the
// book channel for the given pair and publishes a snapshot after every
// update. Reconnects with doubling backoff until the context is cancelled.
func (k *KrakenFeed) StartBookStream(ctx context.Context, books chan<- Snapshot, pair string) error {
	const wsURL = "wss://ws.kraken.com"
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("KrakenFeed: context cancelled, shutting down")
			return nil
		default:
		}

		k.logger.Info("KrakenFeed: connecting to WebSocket", "url", wsURL, "backoff", backoff)
		c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			k.logger.Error("KrakenFeed: WebSocket connection failed", "error", err)
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

		subscription := map[string]interface{}{
			"event": "subscribe",
			"pair":  []string{pair},
			"subscription": map[string]interface{}{
				"name":  "book",
				"depth": krakenBookDepth,
			},
		}
		if err := c.WriteJSON(subscription); err != nil {
			k.logger.Error("KrakenFeed: failed to send subscription", "error", err)
			c.Close()
			continue
		}
		k.logger.Info("KrakenFeed: subscription sent successfully")

		if err := k.readLoop(ctx, c, books); err != nil {
			k.logger.Error("KrakenFeed: stream ended, reconnecting", "error", err)
			c.Close()
			continue
		}
		c.Close()
		return nil
	}
}

// readLoop consumes messages until the connection fails or the context is
// cancelled. A nil return means clean shutdown.
func (k *KrakenFeed) readLoop(ctx context.Context, c *websocket.Conn, books chan<- Snapshot) error {
	// A reconnect always starts from a fresh snapshot.
	k.asks = make(map[string]decimal.Decimal)
	k.bids = make(map[string]decimal.Decimal)

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("KrakenFeed: context cancelled, closing connection")
			return nil
		default:
		}

		_, message, err := c.ReadMessage()
		if err != nil {
			return err
		}
		if len(message) == 0 || message[0] != '[' {
			// Event messages: subscription status, heartbeats.
			var event struct {
				Event string `json:"event"`
			}
			if err := json.Unmarshal(message, &event); err == nil && event.Event == "subscriptionStatus" {
				k.logger.Info("KrakenFeed: subscription confirmed")
			}
			continue
		}

		var parts []json.RawMessage
		if err := json.Unmarshal(message, &parts); err != nil {
			k.logger.Warn("KrakenFeed: failed to parse message", "error", err)
			continue
		}
		// [channelID, payload, ..., channelName, pair]
		if len(parts) < 2 {
			continue
		}
		changed := false
		for _, part := range parts[1:] {
			var payload struct {
				AskSnapshot [][]string `json:"as"`
				BidSnapshot [][]string `json:"bs"`
				AskUpdate   [][]string `json:"a"`
				BidUpdate   [][]string `json:"b"`
			}
			if err := json.Unmarshal(part, &payload); err != nil {
				continue
			}
			changed = k.applyLevels(k.asks, payload.AskSnapshot) || changed
			changed = k.applyLevels(k.bids, payload.BidSnapshot) || changed
			changed = k.applyLevels(k.asks, payload.AskUpdate) || changed
			changed = k.applyLevels(k.bids, payload.BidUpdate) || changed
		}
		if !changed {
			continue
		}

		select {
		case books <- Snapshot{Exchange: k.Name(), Book: k.buildBook()}:
		case <-ctx.Done():
			k.logger.Info("KrakenFeed: context cancelled while sending snapshot")
			return nil
		}
	}
}

// applyLevels folds [price, volume, ...] entries into a book side. A zero
// volume deletes the level.
func (k *KrakenFeed) applyLevels(side map[string]decimal.Decimal, levels [][]string) bool {
	changed := false
	for _, level := range levels {
		if len(level) < 2 {
			continue
		}
		volume, err := decimal.NewFromString(level[1])
		if err != nil {
			k.logger.Warn("KrakenFeed: failed to parse volume", "error", err)
			continue
		}
		if volume.IsZero() {
			delete(side, level[0])
		} else {
			side[level[0]] = volume
		}
		changed = true
	}
	return changed
}

func (k *KrakenFeed) buildBook() *book.OrderBook {
	b := &book.OrderBook{}
	for priceStr, volume := range k.asks {
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			continue
		}
		b.Asks = append(b.Asks, book.NewOrder(volume, price))
	}
	for priceStr, volume := range k.bids {
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			continue
		}
		b.Bids = append(b.Bids, book.NewOrder(volume, price))
	}
	b.Normalize()
	return b
}
