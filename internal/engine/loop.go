package engine

import (
	"context"
	"fmt"
	"time"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/types"
)

// Runner drives Engine.Step on a fixed cadence.
type Runner struct {
	Engine  interfaces.Engine
	Poll    time.Duration
	Backoff time.Duration
	// OnResult, when set, sees every successful cycle.
	OnResult func(*types.StepResult)
}

func NewRunner(eng interfaces.Engine, poll, backoff time.Duration) *Runner {
	if poll <= 0 {
		poll = 60 * time.Second
	}
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	return &Runner{Engine: eng, Poll: poll, Backoff: backoff}
}

// Run loops until ctx is cancelled (nil) or a fatal error stops it. A
// cycle in progress is never interrupted: cancellation is checked only
// while sleeping.
func (r *Runner) Run(ctx context.Context) error {
	for cycle := 1; ; cycle++ {
		if ctx.Err() != nil {
			return nil
		}

		res, err := r.Engine.Step(context.WithoutCancel(ctx))
		wait := r.Poll
		if err != nil {
			if !IsTransient(err) {
				logger.ErrorWithErr(ctx, "Fatal error, stopping", err, "cycle", cycle, "stage", StageOf(err))
				return fmt.Errorf("cycle %d: %w", cycle, err)
			}
			logger.ErrorWithErr(ctx, "Cycle failed, backing off", err, "cycle", cycle, "stage", StageOf(err), "backoff", r.Backoff)
			wait = r.Backoff
		} else if r.OnResult != nil {
			r.OnResult(res)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info(ctx, "Trading loop stopped", "cycles", cycle)
			return nil
		case <-timer.C:
		}
	}
}
