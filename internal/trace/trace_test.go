package trace

import (
	"context"
	"testing"
)

func TestSampleRatio(t *testing.T) {
	tests := map[string]float64{"": 1, "0.25": 0.25, "abc": 1, "2": 1, "0": 0}
	for in, want := range tests {
		t.Setenv("TRACE_SAMPLE_RATIO", in)
		if got := sampleRatio(); got != want {
			t.Errorf("TRACE_SAMPLE_RATIO=%q: expected %v, got %v", in, want, got)
		}
	}
}

func TestStartSpanDisabled(t *testing.T) {
	t.Setenv("LOG_TRACING_ENABLED", "false")
	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	if _, _, ok := GetTraceFields(ctx); ok {
		t.Error("Expected no trace fields while tracing is disabled")
	}
}
