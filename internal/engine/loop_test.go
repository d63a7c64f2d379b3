package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"ta-trading-bot/internal/types"
)

type scriptedEngine struct {
	errs   []error
	calls  int
	cancel context.CancelFunc
	stopAt int
}

func (s *scriptedEngine) Step(ctx context.Context) (*types.StepResult, error) {
	if ctx.Done() != nil {
		panic("cycle context must not be cancellable")
	}
	i := s.calls
	s.calls++
	if s.calls == s.stopAt && s.cancel != nil {
		s.cancel()
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &types.StepResult{Decision: types.Decision{Action: types.ActionHold}}, nil
}

func (s *scriptedEngine) Warmup(ctx context.Context) (*types.StepResult, error) {
	return &types.StepResult{}, nil
}

func TestRunnerBacksOffOnTransientErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng := &scriptedEngine{
		errs:   []error{stageErr(StageFetch, errors.New("timeout")), stageErr(StageBalance, errors.New("502"))},
		cancel: cancel,
		stopAt: 4,
	}
	r := NewRunner(eng, time.Millisecond, time.Millisecond)
	var results int
	r.OnResult = func(*types.StepResult) { results++ }

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Expected clean stop, got %v", err)
	}
	if eng.calls != 4 {
		t.Errorf("Expected 4 cycles, got %d", eng.calls)
	}
	if results != 2 {
		t.Errorf("Expected 2 successful results, got %d", results)
	}
}

func TestRunnerStopsOnFatalError(t *testing.T) {
	eng := &scriptedEngine{errs: []error{nil, stageErr(StageBalance, fatalErr{})}}
	r := NewRunner(eng, time.Millisecond, time.Millisecond)

	err := r.Run(context.Background())
	if err == nil {
		t.Fatal("Expected the loop to stop with an error")
	}
	if StageOf(err) != StageBalance {
		t.Errorf("Expected balance stage, got %v", err)
	}
	if eng.calls != 2 {
		t.Errorf("Expected 2 cycles, got %d", eng.calls)
	}
}

func TestRunnerReturnsWhenCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := &scriptedEngine{}
	if err := NewRunner(eng, time.Hour, time.Hour).Run(ctx); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	if eng.calls != 0 {
		t.Errorf("Expected no cycles, got %d", eng.calls)
	}
}

func TestTransientClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"fetch io", stageErr(StageFetch, errors.New("eof")), true},
		{"cost basis io", stageErr(StageCostBasis, errors.New("disk")), true},
		{"compute", stageErr(StageCompute, errors.New("nan")), false},
		{"fatal credential", stageErr(StageFetch, fatalErr{}), false},
		{"invalid state", stageErr(StageAct, ErrInvalidState), false},
		{"cancelled", stageErr(StageFetch, context.Canceled), false},
		{"plain error", errors.New("x"), true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("%s: expected transient=%v, got %v", tt.name, tt.want, got)
		}
	}
}
