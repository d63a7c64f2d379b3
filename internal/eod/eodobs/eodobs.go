package eodobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/trace"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
	}
}

func (oes *observableEodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	ctx, span := trace.StartSpan(ctx, "eod.SummarizeDay")
	defer span.End()

	date := t.UTC().Format("2006-01-02")
	span.SetAttributes(attribute.String("date", date))
	logger.InfoSkip(ctx, 1, "Starting EOD summary generation", "date", date)

	csvPath, err := oes.summarizer.SummarizeDay(ctx, t)
	return oes.report(ctx, date, csvPath, err)
}

func (oes *observableEodSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	ctx, span := trace.StartSpan(ctx, "eod.SummarizeToday")
	defer span.End()

	csvPath, err := oes.summarizer.SummarizeToday(ctx)
	return oes.report(ctx, "today", csvPath, err)
}

func (oes *observableEodSummarizer) report(ctx context.Context, date, csvPath string, err error) (string, error) {
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 2, "EOD summary generation failed", err, "date", date)
		return "", err
	}
	if csvPath == "" {
		logger.InfoSkip(ctx, 2, "No trades found for EOD summary", "date", date)
		return "", nil
	}
	logger.InfoSkip(ctx, 2, "EOD summary generated successfully", "date", date, "csv_path", csvPath)
	return csvPath, nil
}
