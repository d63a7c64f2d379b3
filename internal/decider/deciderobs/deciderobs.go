package deciderobs

import (
	"context"
	"time"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/trace"
	"ta-trading-bot/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

type observableDecider struct {
	decider interfaces.Decider
}

var _ interfaces.Decider = (*observableDecider)(nil)

// Wrap adds a span and decision logs around a decider.
func Wrap(decider interfaces.Decider) interfaces.Decider {
	return &observableDecider{decider: decider}
}

func (od *observableDecider) Decide(ctx context.Context, in types.DecisionInput) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "decider.Decide")
	defer span.End()

	start := time.Now()
	cost := 0.0
	if in.CostBasis != nil {
		cost = *in.CostBasis
	}
	span.SetAttributes(
		attribute.String("symbol", in.Symbol),
		attribute.Float64("price", in.Price),
		attribute.Float64("cost_basis", cost),
	)

	logger.DebugSkip(ctx, 1, "Evaluating decision rules",
		"symbol", in.Symbol,
		"price", in.Price,
		"rsi", in.Indicators.RSI,
		"bb_lower", in.Indicators.BB.Lower,
		"bb_upper", in.Indicators.BB.Upper,
		"macd", in.Indicators.MACD,
		"signal", in.Indicators.Signal,
		"cost_basis", cost,
	)

	d, err := od.decider.Decide(ctx, in)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Decision failed", err, "symbol", in.Symbol)
		return types.Decision{}, err
	}

	span.SetAttributes(attribute.String("action", string(d.Action)), attribute.String("reason", d.Reason))
	logger.Decision(ctx, in.Symbol, string(d.Action), d.Reason,
		"price", in.Price,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return d, nil
}
