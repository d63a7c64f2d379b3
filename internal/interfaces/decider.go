package interfaces

import (
	"context"

	"ta-trading-bot/internal/types"
)

type Decider interface {
	Decide(ctx context.Context, in types.DecisionInput) (types.Decision, error)
}
