package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"coinarb/internal/arbitrage"
	"coinarb/internal/config"
	"coinarb/internal/database"
	"coinarb/internal/engine"
	"coinarb/internal/exchange"
	"coinarb/internal/transfer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("cannot connect to database: %w", err)
	}
	repo := database.NewPostgresRepository(pool)
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		return err
	}

	exchanges, err := buildExchanges(cfg)
	if err != nil {
		return err
	}

	runCfg, err := buildRun(cfg.Run)
	if err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}

	validator, err := arbitrage.NewValidator(runCfg.RoundsRequired, exchanges)
	if err != nil {
		return err
	}

	keeper := exchange.NewBookKeeper(logger)
	for _, ex := range exchanges {
		feed, err := exchange.NewFeed(ex.Name, logger)
		if err != nil {
			logger.Warn("venue has no live book feed", "exchange", ex.Name)
			continue
		}
		keeper.Watch(ctx, feed, cfg.Run.Pair)
	}

	hunter := arbitrage.NewHunter(exchanges, keeper, logger)
	transfers := transfer.NewManager(repo, exchanges, logger)

	eng := engine.New(logger, repo, runCfg, exchanges, hunter, validator, transfers)
	return eng.Run(ctx)
}

func buildExchanges(cfg config.Config) ([]*exchange.Exchange, error) {
	var exchanges []*exchange.Exchange
	for _, name := range cfg.Run.Exchanges {
		preset, err := exchange.Preset(name)
		if err != nil {
			return nil, err
		}
		if override, ok := cfg.Exchanges[name]; ok {
			if err := applyOverrides(&preset, override); err != nil {
				return nil, fmt.Errorf("exchange %s: %w", name, err)
			}
		}
		exchanges = append(exchanges, exchange.New(preset))
	}
	if len(exchanges) < 2 {
		return nil, fmt.Errorf("need at least two exchanges, have %d", len(exchanges))
	}
	return exchanges, nil
}

func applyOverrides(preset *exchange.Config, override config.ExchangeConfig) error {
	assign := func(dst *decimal.Decimal, raw string) error {
		if raw == "" {
			return nil
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}

	if err := assign(&preset.TradeFeePercent, override.TradeFeePercent); err != nil {
		return err
	}
	if err := assign(&preset.BtcTransferFee, override.BtcTransferFee); err != nil {
		return err
	}
	if err := assign(&preset.InitialBtc, override.InitialBtc); err != nil {
		return err
	}
	return assign(&preset.InitialFiat, override.InitialFiat)
}

func buildRun(cfg config.RunConfig) (*arbitrage.Run, error) {
	minProfit, err := decimal.NewFromString(cfg.MinimumProfit)
	if err != nil {
		return nil, fmt.Errorf("minimum_profit: %w", err)
	}
	maxBtc, err := decimal.NewFromString(cfg.MaxBtcPerTrade)
	if err != nil {
		return nil, fmt.Errorf("max_btc_per_trade: %w", err)
	}
	maxFiat, err := decimal.NewFromString(cfg.MaxFiatPerTrade)
	if err != nil {
		return nil, fmt.Errorf("max_fiat_per_trade: %w", err)
	}

	run := &arbitrage.Run{
		MinimumProfit:          minProfit,
		MaxBtcPerTrade:         maxBtc,
		MaxFiatPerTrade:        maxFiat,
		RollupTradeCount:       cfg.RollupTradeCount,
		SearchInterval:         time.Duration(cfg.SearchIntervalMS) * time.Millisecond,
		RoundsRequired:         cfg.RoundsRequired,
		AccountForTransferFees: cfg.AccountForTransferFees,
		Mode:                   arbitrage.Mode(cfg.Mode),
		SelectionPolicy:        arbitrage.SelectionPolicy(cfg.SelectionPolicy),
		TransferMode:           arbitrage.TransferMode(cfg.TransferMode),
		FiatCurrency:           cfg.FiatCurrency,
		Exchanges:              cfg.Exchanges,
	}

	if cfg.PercentRestriction != "" {
		restriction, err := decimal.NewFromString(cfg.PercentRestriction)
		if err != nil {
			return nil, fmt.Errorf("percent_restriction: %w", err)
		}
		run.PercentRestriction = &restriction
	}
	if cfg.RollupHours != "" {
		hours, err := decimal.NewFromString(cfg.RollupHours)
		if err != nil {
			return nil, fmt.Errorf("rollup_hours: %w", err)
		}
		run.RollupHours = hours
	}
	return run, nil
}
