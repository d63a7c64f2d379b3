package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/tradelog"
)

// Scheduler runs housekeeping jobs next to the trading loop: the daily
// ledger summary and journal compression.
type Scheduler struct {
	Cron          *cron.Cron
	EOD           interfaces.EodSummarizer
	RetentionDays int
	Compress      func(retentionDays int) (int, error)
	Ctx           context.Context
}

func NewScheduler(ctx context.Context, eod interfaces.EodSummarizer, retentionDays int) *Scheduler {
	return &Scheduler{
		Cron:          cron.New(cron.WithSeconds()),
		EOD:           eod,
		RetentionDays: retentionDays,
		Compress:      tradelog.CompressOlder,
		Ctx:           ctx,
	}
}

// RegisterAll registers the EOD and compression jobs. Specs take a leading seconds field.
func (s *Scheduler) RegisterAll(eodCron, compressCron string) error {
	if s.EOD != nil && eodCron != "" {
		if _, err := s.Cron.AddFunc(eodCron, s.eodTask); err != nil {
			return fmt.Errorf("register eod task: %w", err)
		}
	}
	if s.RetentionDays > 0 && compressCron != "" {
		if _, err := s.Cron.AddFunc(compressCron, s.compressTask); err != nil {
			return fmt.Errorf("register compress task: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	logger.Info(s.Ctx, "scheduler started", "jobs", len(s.Cron.Entries()))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	logger.Info(s.Ctx, "scheduler stopped")
}

// RunEODNow runs the summary job immediately.
func (s *Scheduler) RunEODNow() { s.eodTask() }

func (s *Scheduler) eodTask() {
	if _, err := s.EOD.SummarizeToday(s.Ctx); err != nil {
		logger.ErrorWithErr(s.Ctx, "eod summary failed", err)
	}
}

func (s *Scheduler) compressTask() {
	n, err := s.Compress(s.RetentionDays)
	if err != nil {
		logger.ErrorWithErr(s.Ctx, "journal compression failed", err, "compressed", n)
		return
	}
	if n > 0 {
		logger.Info(s.Ctx, "journals compressed", "files", n, "retention_days", s.RetentionDays)
	}
}
