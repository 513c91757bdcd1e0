// Package engine runs the arbitration session: each round it hunts for
// opportunities, validates and filters them, executes the pick and settles
// transfers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"coinarb/internal/arbitrage"
	"coinarb/internal/database"
	"coinarb/internal/exchange"
	"coinarb/internal/transfer"
)

// Engine drives one arbitration run over a fleet of exchanges.
type Engine struct {
	logger    *slog.Logger
	repo      database.Repository
	run       *arbitrage.Run
	exchanges []*exchange.Exchange
	hunter    *arbitrage.Hunter
	validator *arbitrage.Validator
	transfers *transfer.Manager

	previousTrade      *arbitrage.Opportunity
	transfersInProcess []*transfer.Transfer
	lastRollup         time.Time
}

// New wires an Engine together.
func New(logger *slog.Logger, repo database.Repository, run *arbitrage.Run,
	exchanges []*exchange.Exchange, hunter *arbitrage.Hunter,
	validator *arbitrage.Validator, transfers *transfer.Manager) *Engine {
	return &Engine{
		logger:    logger,
		repo:      repo,
		run:       run,
		exchanges: exchanges,
		hunter:    hunter,
		validator: validator,
		transfers: transfers,
	}
}

// Run persists the session, then repeats hunting rounds at the configured
// interval until the context is cancelled. The run's end time is recorded on
// the way out.
func (e *Engine) Run(ctx context.Context) error {
	if e.run.Mode == arbitrage.ModeLive {
		return errors.New("live order placement is not wired up; run in simulation mode")
	}

	e.run.StartedAt = time.Now()
	if err := e.repo.SaveRun(ctx, e.run); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	e.lastRollup = time.Now()
	e.logger.Info("arbitration run started", "run", e.run.ID, "interval", e.run.SearchInterval)

	ticker := time.NewTicker(e.run.SearchInterval)
	defer ticker.Stop()

	for {
		e.round(ctx)

		select {
		case <-ctx.Done():
			e.run.EndedAt = time.Now()
			if err := e.repo.SaveRun(context.WithoutCancel(ctx), e.run); err != nil {
				e.logger.Error("failed to record run end", "error", err)
			}
			e.logger.Info("arbitration run stopped", "run", e.run.ID)
			return nil
		case <-ticker.C:
		}
	}
}

// round performs one pass: verify the previous trade's order execution,
// checkpoint balances, hunt, validate, select, execute, then settle and roll
// up transfers.
func (e *Engine) round(ctx context.Context) {
	if e.previousTrade != nil {
		if err := e.validator.ValidateOrderExecution(ctx, e.previousTrade); err != nil {
			e.logger.Warn("previous trade order execution check failed", "trade", e.previousTrade.ID, "error", err)
		}
		e.previousTrade = nil
	}

	e.validator.CheckpointBalances()

	// Per-trade transfers always pay the withdrawal fee, so it is priced in
	// regardless of the run's setting.
	accountForTransferFee := e.run.AccountForTransferFees || e.run.TransferMode == arbitrage.TransferOnTime
	opportunities := e.hunter.FindOpportunities(ctx,
		e.run.MaxBtcPerTrade, e.run.MaxFiatPerTrade, e.run.MinimumProfit, accountForTransferFee)

	validated := e.validator.ValidateOpportunities(opportunities)
	for _, opp := range validated {
		e.logger.Info("validated opportunity",
			"buy", opp.BuyExchange.Name, "sell", opp.SellExchange.Name,
			"amount", opp.BuyAmount, "profit", opp.Profit)
	}

	if toExecute, err := e.selectOpportunity(validated); err != nil {
		e.logger.Warn("opportunity selection failed", "error", err)
	} else if toExecute != nil {
		if err := e.executeTrade(ctx, toExecute); err != nil {
			e.logger.Error("trade execution failed", "error", err)
		} else {
			e.previousTrade = toExecute
		}
	}

	if err := e.transfers.CompleteTransfers(ctx, &e.transfersInProcess); err != nil {
		e.logger.Error("completing transfers failed", "error", err)
	}

	e.processRollups(ctx)
}

// selectOpportunity applies the run's selection policy to the validated
// opportunities.
func (e *Engine) selectOpportunity(validated []*arbitrage.Opportunity) (*arbitrage.Opportunity, error) {
	if len(validated) == 0 {
		return nil, nil
	}

	switch e.run.SelectionPolicy {
	case arbitrage.SelectMostProfitable:
		return arbitrage.MostProfitableTrade(validated), nil
	case arbitrage.SelectLowestBtcExchange:
		return arbitrage.TradeForExchangeWithLowestBtc(validated, e.exchanges)
	case arbitrage.SelectPercentRestriction:
		if e.run.PercentRestriction == nil {
			return nil, errors.New("percent restriction policy requires a restriction value")
		}
		return arbitrage.MostProfitableTradeWithPercentRestriction(validated, e.exchanges, *e.run.PercentRestriction)
	default:
		return nil, fmt.Errorf("unsupported selection policy %q", e.run.SelectionPolicy)
	}
}

// executeTrade settles the trade against the simulated balances, persists it
// and starts an on-time transfer when the run calls for one.
func (e *Engine) executeTrade(ctx context.Context, trade *arbitrage.Opportunity) error {
	trade.ExecutedAt = time.Now()
	trade.RunID = e.run.ID

	if err := trade.SellExchange.SimulatedSell(trade.SellAmount, trade.TotalSellCost); err != nil {
		return err
	}
	// Floored so venue rounding can never charge a hair more fiat than the
	// exchange holds.
	if err := trade.BuyExchange.SimulatedBuy(trade.BuyAmount, trade.TotalBuyCost.RoundFloor(9)); err != nil {
		return err
	}

	// Balances are checked against the round's checkpoint now, while only the
	// trade itself has moved them. The transfer below debits the bought BTC
	// again and settling transfers shift balances further.
	if err := e.validator.ValidateExchangeBalances(trade); err != nil {
		e.logger.Warn("trade balance check failed", "trade", trade.ID, "error", err)
	}

	if err := e.repo.SaveTrade(ctx, trade); err != nil {
		return fmt.Errorf("saving trade: %w", err)
	}
	e.logger.Info("executed arbitration trade", "trade", trade.ID,
		"buy", trade.BuyExchange.Name, "sell", trade.SellExchange.Name,
		"amount", trade.BuyAmount, "profit", trade.Profit)

	if e.run.TransferMode == arbitrage.TransferOnTime {
		t, err := e.transfers.OnTimeTransfer(ctx, trade.BuyExchange, trade.SellExchange, trade.BuyAmount)
		if err != nil {
			return fmt.Errorf("on-time transfer: %w", err)
		}
		trade.TransferID = t.ID
		e.transfersInProcess = append(e.transfersInProcess, t)

		if err := e.repo.SaveTrade(ctx, trade); err != nil {
			return fmt.Errorf("saving trade transfer id: %w", err)
		}
	}
	return nil
}

// processRollups executes consolidated transfers per the run's transfer mode.
func (e *Engine) processRollups(ctx context.Context) {
	switch e.run.TransferMode {
	case arbitrage.TransferRollupOnTrades:
		e.rollup(ctx, e.run.RollupTradeCount)
	case arbitrage.TransferRollupByHour:
		hours := time.Duration(e.run.RollupHours.InexactFloat64() * float64(time.Hour))
		if time.Since(e.lastRollup) > hours {
			// Time-based rollups move whatever has accumulated, however few
			// trades that is.
			e.rollup(ctx, 1)
			e.lastRollup = time.Now()
		}
	}
}

func (e *Engine) rollup(ctx context.Context, count int) {
	executed, err := e.transfers.DetectAndExecuteRollups(ctx, count, e.run.ID)
	if err != nil {
		e.logger.Error("rollup transfers failed", "error", err)
	}
	e.transfersInProcess = append(e.transfersInProcess, executed...)
}
