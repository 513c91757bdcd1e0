package engine

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coinarb/internal/arbitrage"
	"coinarb/internal/book"
	"coinarb/internal/exchange"
	"coinarb/internal/transfer"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRepository) SaveRun(ctx context.Context, run *arbitrage.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRepository) SaveTrade(ctx context.Context, trade *arbitrage.Opportunity) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

func (m *MockRepository) SaveTransfer(ctx context.Context, t *transfer.Transfer) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockRepository) PendingRollupGroups(ctx context.Context, runID int64) ([]transfer.RollupGroup, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]transfer.RollupGroup), args.Error(1)
}

func (m *MockRepository) AssignTransferToTrades(ctx context.Context, runID int64, buyExchange, sellExchange string, transferID int64) error {
	args := m.Called(ctx, runID, buyExchange, sellExchange, transferID)
	return args.Error(0)
}

func (m *MockRepository) Close() {
	m.Called()
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(t *testing.T, repo *MockRepository, run *arbitrage.Run, logger *slog.Logger) (*Engine, *exchange.Exchange, *exchange.Exchange) {
	t.Helper()
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	kraken := exchange.New(exchange.Config{
		Name:                "kraken",
		BtcTransferFee:      d("0.0005"),
		AmountDecimalPlaces: 8,
		FeeCurrency:         exchange.FeeInFiat,
		InitialBtc:          d("5"),
		InitialFiat:         d("10000"),
	})
	bitstamp := exchange.New(exchange.Config{
		Name:                "bitstamp",
		BtcTransferFee:      d("0.0005"),
		AmountDecimalPlaces: 8,
		FeeCurrency:         exchange.FeeInFiat,
		InitialBtc:          d("5"),
		InitialFiat:         d("10000"),
	})

	exchanges := []*exchange.Exchange{kraken, bitstamp}
	hunter := arbitrage.NewHunter(exchanges, nil, logger)
	validator, err := arbitrage.NewValidator(run.RoundsRequired, exchanges)
	require.NoError(t, err)
	transfers := transfer.NewManager(repo, exchanges, logger)

	return New(logger, repo, run, exchanges, hunter, validator, transfers), kraken, bitstamp
}

func crossBooks(kraken, bitstamp *exchange.Exchange) {
	kraken.Book = &book.OrderBook{
		Asks: book.OrderList{book.NewOrder(d("1.1"), d("400"))},
		Bids: book.OrderList{},
	}
	bitstamp.Book = &book.OrderBook{
		Asks: book.OrderList{},
		Bids: book.OrderList{book.NewOrder(d("0.6"), d("401"))},
	}
}

func flatBooks(kraken, bitstamp *exchange.Exchange) {
	kraken.Book = &book.OrderBook{
		Asks: book.OrderList{book.NewOrder(d("1.1"), d("400"))},
		Bids: book.OrderList{},
	}
	bitstamp.Book = &book.OrderBook{
		Asks: book.OrderList{},
		Bids: book.OrderList{book.NewOrder(d("0.6"), d("399"))},
	}
}

func testRun() *arbitrage.Run {
	return &arbitrage.Run{
		ID:              1,
		MinimumProfit:   d("0.01"),
		MaxBtcPerTrade:  d("99"),
		MaxFiatPerTrade: d("9999"),
		SearchInterval:  time.Second,
		RoundsRequired:  1,
		Mode:            arbitrage.ModeSimulation,
		SelectionPolicy: arbitrage.SelectMostProfitable,
		TransferMode:    arbitrage.TransferOnTime,
		FiatCurrency:    "USD",
		Exchanges:       []string{"kraken", "bitstamp"},
	}
}

func TestEngineRound(t *testing.T) {
	ctx := context.Background()

	t.Run("no trade without crossed books", func(t *testing.T) {
		repo := new(MockRepository)
		engine, kraken, bitstamp := newTestEngine(t, repo, testRun(), nil)
		flatBooks(kraken, bitstamp)

		engine.round(ctx)
		repo.AssertNotCalled(t, "SaveTrade")
		assert.Nil(t, engine.previousTrade)
	})

	t.Run("executes a validated trade and starts the transfer", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("SaveTrade", mock.Anything, mock.Anything).Return(nil).Twice()
		repo.On("SaveTransfer", mock.Anything, mock.Anything).Return(nil).Once()

		engine, kraken, bitstamp := newTestEngine(t, repo, testRun(), nil)
		crossBooks(kraken, bitstamp)

		engine.round(ctx)

		repo.AssertExpectations(t)
		require.NotNil(t, engine.previousTrade)
		trade := engine.previousTrade
		assert.Equal(t, kraken, trade.BuyExchange)
		assert.Equal(t, bitstamp, trade.SellExchange)
		assert.True(t, trade.BuyAmount.Equal(d("0.6")), "buy amount = %s", trade.BuyAmount)

		// The sell leg swapped btc for fiat, the buy leg fiat for btc, and the
		// bought btc left the buy exchange on its way back to the sell side.
		assert.True(t, bitstamp.AvailableBtc.Equal(d("4.4")), "bitstamp btc = %s", bitstamp.AvailableBtc)
		assert.True(t, bitstamp.AvailableFiat.Equal(d("10240.6")), "bitstamp fiat = %s", bitstamp.AvailableFiat)
		assert.True(t, kraken.AvailableFiat.Equal(d("9760")), "kraken fiat = %s", kraken.AvailableFiat)
		assert.True(t, kraken.AvailableBtc.Equal(d("5")), "kraken btc = %s", kraken.AvailableBtc)
		assert.True(t, bitstamp.BtcInTransfer.Equal(d("0.5995")), "in transfer = %s", bitstamp.BtcInTransfer)
		require.Len(t, engine.transfersInProcess, 1)
	})

	t.Run("a clean on-time trade passes its balance check", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&logs, nil))

		repo := new(MockRepository)
		repo.On("SaveTrade", mock.Anything, mock.Anything).Return(nil)
		repo.On("SaveTransfer", mock.Anything, mock.Anything).Return(nil)

		engine, kraken, bitstamp := newTestEngine(t, repo, testRun(), logger)
		crossBooks(kraken, bitstamp)

		engine.round(ctx)
		require.NotNil(t, engine.previousTrade)
		engine.round(ctx)

		assert.NotContains(t, logs.String(), "balance check failed")
	})

	t.Run("a balance mismatch on execution is logged", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&logs, nil))

		repo := new(MockRepository)
		repo.On("SaveTrade", mock.Anything, mock.Anything).Return(nil)
		repo.On("SaveTransfer", mock.Anything, mock.Anything).Return(nil)

		engine, kraken, bitstamp := newTestEngine(t, repo, testRun(), logger)

		// Without a checkpoint the balance movement cannot be accounted for.
		trade := arbitrage.NewOpportunity(kraken, bitstamp)
		trade.BuyAmount = d("0.6")
		trade.SellAmount = d("0.6")
		trade.TotalBuyCost = d("240")
		trade.TotalSellCost = d("240.6")

		require.NoError(t, engine.executeTrade(ctx, trade))
		assert.Contains(t, logs.String(), "balance check failed")
	})

	t.Run("opportunities wait out the required rounds", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("SaveTrade", mock.Anything, mock.Anything).Return(nil)
		repo.On("SaveTransfer", mock.Anything, mock.Anything).Return(nil)

		run := testRun()
		run.RoundsRequired = 3
		engine, kraken, bitstamp := newTestEngine(t, repo, run, nil)
		crossBooks(kraken, bitstamp)

		engine.round(ctx)
		engine.round(ctx)
		repo.AssertNotCalled(t, "SaveTrade")

		engine.round(ctx)
		require.NotNil(t, engine.previousTrade)
	})
}

func TestEngineRunRejectsLiveMode(t *testing.T) {
	repo := new(MockRepository)
	run := testRun()
	run.Mode = arbitrage.ModeLive

	engine, _, _ := newTestEngine(t, repo, run, nil)
	err := engine.Run(context.Background())
	require.Error(t, err)
	repo.AssertNotCalled(t, "SaveRun")
}
