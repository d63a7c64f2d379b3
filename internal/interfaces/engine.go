package interfaces

import (
	"context"

	"ta-trading-bot/internal/types"
)

type Engine interface {
	Step(ctx context.Context) (*types.StepResult, error)
	Warmup(ctx context.Context) (*types.StepResult, error)
}
