package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ta-trading-bot/internal/broker/binance"
	"ta-trading-bot/internal/broker/brokerobs"
	"ta-trading-bot/internal/broker/paper"
	"ta-trading-bot/internal/decider"
	"ta-trading-bot/internal/decider/deciderobs"
	"ta-trading-bot/internal/engine"
	"ta-trading-bot/internal/engine/engineobs"
	"ta-trading-bot/internal/eod"
	"ta-trading-bot/internal/eod/eodobs"
	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/metrics"
	"ta-trading-bot/internal/store"
	"ta-trading-bot/internal/trace"
	"ta-trading-bot/internal/types"
)

// initializeSystem loads .env and sets up the logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func configPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig(configPath())
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath())
		return nil, err
	}
	return cfg, nil
}

func newExchange(cfg *store.Config) *binance.Client {
	return binance.New(binance.Params{
		BaseURL:         cfg.Exchange.BaseURL,
		StreamURL:       cfg.Exchange.StreamURL,
		APIKey:          cfg.Exchange.APIKey,
		SecretKey:       cfg.Exchange.SecretKey,
		RecvWindowMs:    cfg.Exchange.RecvWindowMs,
		Timeout:         time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
		RequestsPerSec:  cfg.Exchange.RequestsPerSec,
		MaxRetries:      cfg.Exchange.MaxRetries,
		Precision:       cfg.Sizing.Precision,
		Interval:        cfg.Interval,
		UseStream:       cfg.DataSource == store.DataSourceStream,
		StreamCacheSize: cfg.Exchange.StreamCacheSize,
	})
}

// initializeBroker picks the exchange client or the paper broker and wraps it
// with observability. In SIMULATED mode the paper broker still reads candles
// from the exchange unless the data source is STATIC.
func initializeBroker(ctx context.Context, cfg *store.Config) interfaces.Broker {
	var brk interfaces.Broker

	if cfg.Simulated() {
		p := paper.Params{InitialBalances: types.Balances(cfg.Simulation.InitialBalances)}
		if cfg.DataSource != store.DataSourceStatic {
			ex := newExchange(cfg)
			p.Market = ex
			if cfg.DataSource == store.DataSourceStream {
				p.Starter = ex
			}
		}
		brk = paper.New(p)
		logger.Warn(ctx, "Running in SIMULATED mode - orders will be simulated",
			"initial_balances", cfg.Simulation.InitialBalances)
	} else {
		brk = newExchange(cfg)
		logger.Warn(ctx, "Running in LIVE mode - orders go to the exchange")
	}

	switch cfg.DataSource {
	case store.DataSourceStatic:
		logger.Info(ctx, "Using STATIC synthetic candle data for testing")
	case store.DataSourceStream:
		logger.Info(ctx, "Using STREAM candle data with REST fallback", "interval", cfg.Interval)
	default:
		logger.Info(ctx, "Using LIVE candle data from Binance", "interval", cfg.Interval)
	}

	return brokerobs.Wrap(brk)
}

func initializeDecider(ctx context.Context, cfg *store.Config) interfaces.Decider {
	var d interfaces.Decider

	switch cfg.Decider {
	case store.DeciderNoop:
		d = decider.NewNoop()
		logger.Warn(ctx, "Using Noop decider (always HOLD)")
	default:
		d = decider.NewRules(cfg.Sizing.FeeRate, cfg.Thresholds.MinMargin, cfg.Thresholds.RSIBuy)
	}

	return deciderobs.Wrap(d)
}

func initializeEngine(cfg *store.Config, brk interfaces.Broker, d interfaces.Decider, ledger interfaces.Ledger, m *metrics.Metrics) (interfaces.Engine, error) {
	eng, err := engine.New(cfg, brk, d, ledger)
	if err != nil {
		return nil, err
	}
	return engineobs.Wrap(eng, m), nil
}

func initializeEOD(cfg *store.Config, ledger interfaces.Ledger) interfaces.EodSummarizer {
	return eodobs.Wrap(eod.NewSummarizer(ledger, cfg.Symbol))
}
