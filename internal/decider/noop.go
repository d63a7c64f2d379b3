package decider

import (
	"context"

	"ta-trading-bot/internal/interfaces"
	"ta-trading-bot/internal/types"
)

// Noop always holds. Used for observe-only runs.
type Noop struct{}

var _ interfaces.Decider = Noop{}

func NewNoop() Noop { return Noop{} }

func (Noop) Decide(ctx context.Context, in types.DecisionInput) (types.Decision, error) {
	return types.Decision{Action: types.ActionHold, Reason: ReasonNoop}, nil
}
