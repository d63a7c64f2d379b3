package engine

import (
	"context"
	"errors"
	"fmt"
)

type Stage string

const (
	StageFetch     Stage = "fetch"
	StageCompute   Stage = "compute"
	StageBalance   Stage = "balance"
	StageCostBasis Stage = "cost_basis"
	StageDecide    Stage = "decide"
	StageSize      Stage = "size"
	StageAct       Stage = "act"
	StagePersist   Stage = "persist"
)

// ErrInvalidState marks a logic error (bad parameters, impossible balances).
var ErrInvalidState = errors.New("invalid engine state")

// StageError names the step of the cycle that failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Transient reports whether the loop should back off and try again.
// Credential failures and logic errors are not transient.
func (e *StageError) Transient() bool {
	if errors.Is(e.Err, ErrInvalidState) || errors.Is(e.Err, context.Canceled) {
		return false
	}
	var f interface{ Fatal() bool }
	if errors.As(e.Err, &f) && f.Fatal() {
		return false
	}
	return e.Stage != StageCompute && e.Stage != StageSize
}

func stageErr(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// IsTransient applies StageError.Transient to any error; errors without a
// stage are transient unless they report themselves fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Transient()
	}
	var f interface{ Fatal() bool }
	if errors.As(err, &f) && f.Fatal() {
		return false
	}
	return !errors.Is(err, ErrInvalidState)
}

// StageOf returns the failing stage or "" for other errors.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
