package graph

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

// testState is a minimal State implementation for engine tests.
type testState struct {
	Steps  []string
	Errors []string
	N      int
}

func (s *testState) RecordStep(stage string)       { s.Steps = append(s.Steps, stage) }
func (s *testState) RecordError(stage, msg string) { s.Errors = append(s.Errors, stage+": "+msg) }

func newTestEngine() *Engine[*testState] {
	e := New[*testState]("error_handler", zap.NewNop())
	e.AddStage("error_handler", func(_ context.Context, s *testState) error {
		s.N = -1
		return nil
	})
	return e
}

func TestLinearRun(t *testing.T) {
	e := newTestEngine()
	e.AddStage("a", func(_ context.Context, s *testState) error { s.N++; return nil })
	e.AddStage("b", func(_ context.Context, s *testState) error { s.N++; return nil })
	e.AddEdge("a", "b")

	s := &testState{}
	e.Run(context.Background(), "a", s)

	if s.N != 2 {
		t.Errorf("got N=%d, want 2", s.N)
	}
	if len(s.Steps) != 2 || s.Steps[0] != "a" || s.Steps[1] != "b" {
		t.Errorf("got steps %v, want [a b]", s.Steps)
	}
	if len(s.Errors) != 0 {
		t.Errorf("unexpected errors: %v", s.Errors)
	}
}

func TestGuardedEdge(t *testing.T) {
	e := newTestEngine()
	e.AddStage("start", func(_ context.Context, s *testState) error { s.N = 7; return nil })
	e.AddStage("odd", func(_ context.Context, s *testState) error { return nil })
	e.AddStage("even", func(_ context.Context, s *testState) error { return nil })
	e.AddConditionalEdge("start", func(s *testState) string {
		if s.N%2 == 0 {
			return "even"
		}
		return "odd"
	})

	s := &testState{}
	e.Run(context.Background(), "start", s)
	if s.Steps[len(s.Steps)-1] != "odd" {
		t.Errorf("got final stage %q, want odd", s.Steps[len(s.Steps)-1])
	}
}

func TestStageErrorRoutesToErrorHandler(t *testing.T) {
	e := newTestEngine()
	e.AddStage("boom", func(_ context.Context, s *testState) error {
		return fmt.Errorf("external call failed")
	})
	e.AddStage("after", func(_ context.Context, s *testState) error { s.N = 99; return nil })
	e.AddEdge("boom", "after")

	s := &testState{}
	e.Run(context.Background(), "boom", s)

	if s.N != -1 {
		t.Errorf("error handler did not run, N=%d", s.N)
	}
	if len(s.Errors) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(s.Errors), s.Errors)
	}
	for _, step := range s.Steps {
		if step == "after" {
			t.Error("stage after a failure must not run")
		}
	}
}

func TestStagePanicIsCaptured(t *testing.T) {
	e := newTestEngine()
	e.AddStage("panics", func(_ context.Context, s *testState) error {
		panic("nil map write")
	})

	s := &testState{}
	e.Run(context.Background(), "panics", s)

	if len(s.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(s.Errors))
	}
	if s.N != -1 {
		t.Error("error handler did not run after panic")
	}
}

func TestUnknownStageDegrades(t *testing.T) {
	e := newTestEngine()
	s := &testState{}
	e.Run(context.Background(), "missing", s)
	if len(s.Errors) == 0 {
		t.Error("unknown entry stage should record an error")
	}
	if s.N != -1 {
		t.Error("error handler should run for unknown stage")
	}
}

func TestCycleExhaustsBudget(t *testing.T) {
	e := newTestEngine()
	e.AddStage("a", func(_ context.Context, s *testState) error { s.N++; return nil })
	e.AddStage("b", func(_ context.Context, s *testState) error { return nil })
	e.AddEdge("a", "b")
	e.AddEdge("b", "a")

	s := &testState{}
	e.Run(context.Background(), "a", s)

	if len(s.Errors) == 0 {
		t.Fatal("cycle should exhaust the step budget and record an error")
	}
	if s.N == 0 || s.N > 100 {
		t.Errorf("unexpected iteration count %d", s.N)
	}
}

func TestCancelledContext(t *testing.T) {
	e := newTestEngine()
	e.AddStage("a", func(_ context.Context, s *testState) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &testState{}
	e.Run(ctx, "a", s)
	if len(s.Errors) == 0 {
		t.Error("cancelled context should record an error")
	}
}

func TestErrorInErrorHandlerDoesNotLoop(t *testing.T) {
	e := New[*testState]("error_handler", zap.NewNop())
	e.AddStage("error_handler", func(_ context.Context, s *testState) error {
		return fmt.Errorf("handler also failed")
	})
	e.AddStage("boom", func(_ context.Context, s *testState) error {
		return fmt.Errorf("original failure")
	})

	s := &testState{}
	e.Run(context.Background(), "boom", s)
	if len(s.Errors) != 2 {
		t.Errorf("got %d errors, want 2 (original + handler)", len(s.Errors))
	}
}
