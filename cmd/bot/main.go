package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ta-trading-bot/internal/engine"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/metrics"
	"ta-trading-bot/internal/scheduler"
	"ta-trading-bot/internal/trace"
	"ta-trading-bot/internal/tradelog"
	"ta-trading-bot/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := initializeSystem(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "Tracer shutdown failed", "error", err)
		}
	}()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	ledger, err := tradelog.Open(cfg.Ledger.Backend, cfg.Ledger.Path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open ledger", err, "backend", cfg.Ledger.Backend, "path", cfg.Ledger.Path)
		return err
	}
	defer ledger.Close()

	m := metrics.New()
	brk := initializeBroker(ctx, cfg)
	d := initializeDecider(ctx, cfg)
	eng, err := initializeEngine(cfg, brk, d, ledger, m)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	logger.Info(ctx, "Bot starting",
		"symbol", cfg.Symbol,
		"mode", cfg.Mode,
		"data_source", cfg.DataSource,
		"decider", cfg.Decider,
		"interval", cfg.Interval,
		"ledger", cfg.Ledger.Path,
	)

	if _, err := eng.Warmup(ctx); err != nil {
		return fmt.Errorf("initial market analysis: %w", err)
	}

	if err := brk.Start(ctx, []string{cfg.Symbol}); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	defer brk.Stop(context.Background())

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, m)
		srv.Start(ctx)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	sched := scheduler.NewScheduler(context.WithoutCancel(ctx), initializeEOD(cfg, ledger), cfg.Schedule.RetentionDays)
	if err := sched.RegisterAll(cfg.Schedule.EODCron, cfg.Schedule.CompressCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	runner := engine.NewRunner(eng, cfg.PollInterval(), cfg.ErrorBackoff())
	runner.OnResult = printResult

	err = runner.Run(ctx)
	logger.Info(context.Background(), "Shutting down...")
	sched.RunEODNow()
	return err
}

func printResult(res *types.StepResult) {
	if b, err := json.Marshal(res); err == nil {
		fmt.Println(string(b))
	}
}
