package engineobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ta-trading-bot/internal/engine"
	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/metrics"
	"ta-trading-bot/internal/trace"
	"ta-trading-bot/internal/types"
)

type observableEngine struct {
	engine  interfaces.Engine
	metrics *metrics.Metrics
}

var _ interfaces.Engine = (*observableEngine)(nil)

// Wrap adds spans, cycle logs and, when m is non-nil, Prometheus metrics.
func Wrap(eng interfaces.Engine, m *metrics.Metrics) interfaces.Engine {
	return &observableEngine{
		engine:  eng,
		metrics: m,
	}
}

func (oe *observableEngine) Step(ctx context.Context) (*types.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Starting trading cycle")

	result, err := oe.engine.Step(ctx)
	took := time.Since(start)
	if err != nil {
		stage := string(engine.StageOf(err))
		span.SetAttributes(attribute.String("stage", stage), attribute.Bool("transient", engine.IsTransient(err)))
		logger.ErrorWithErrSkip(ctx, 1, "Trading cycle failed", err,
			"stage", stage,
			"duration_ms", took.Milliseconds(),
		)
		if oe.metrics != nil {
			oe.metrics.ObserveError(stage, err, took)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("symbol", result.Symbol),
		attribute.String("action", string(result.Decision.Action)),
		attribute.Float64("price", result.Price),
	)
	logger.InfoSkip(ctx, 1, "Trading cycle completed",
		"symbol", result.Symbol,
		"action", result.Decision.Action,
		"qty", result.Decision.Qty,
		"reason", result.Reason,
		"orders", len(result.Orders),
		"duration_ms", took.Milliseconds(),
	)
	if oe.metrics != nil {
		oe.metrics.ObserveResult(result, took)
	}
	return result, nil
}

func (oe *observableEngine) Warmup(ctx context.Context) (*types.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Warmup")
	defer span.End()

	start := time.Now()
	result, err := oe.engine.Warmup(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Initial market analysis failed", err,
			"stage", engine.StageOf(err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	if !result.Indicators.Defined() {
		logger.WarnSkip(ctx, 1, "Indicators still warming up, the first cycles will HOLD",
			"symbol", result.Symbol,
		)
	}
	logger.InfoSkip(ctx, 1, "Warmup completed",
		"symbol", result.Symbol,
		"price", result.Price,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
