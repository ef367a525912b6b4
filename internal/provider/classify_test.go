package provider

import (
	"context"
	"fmt"
	"testing"
)

// stubCompleter returns a canned response or error.
type stubCompleter struct {
	content string
	err     error
}

func (s *stubCompleter) Complete(_ context.Context, _ *CompletionRequest) (*CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &CompletionResponse{Content: s.content}, nil
}

func TestClassifyParsesStrictJSON(t *testing.T) {
	c := &stubCompleter{content: `{"primary":"weather_agent","confidence":0.87,"secondary":["general_agent"]}`}
	got, err := Classify(context.Background(), c, []string{"weather_agent", "general_agent"}, "météo demain", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Primary != "weather_agent" {
		t.Errorf("got primary %q, want weather_agent", got.Primary)
	}
	if got.Confidence != 0.87 {
		t.Errorf("got confidence %f, want 0.87", got.Confidence)
	}
	if len(got.Secondary) != 1 {
		t.Errorf("got %d secondary, want 1", len(got.Secondary))
	}
}

func TestClassifyStripsFences(t *testing.T) {
	c := &stubCompleter{content: "```json\n{\"primary\":\"regulatory_agent\",\"confidence\":1.4}\n```"}
	got, err := Classify(context.Background(), c, []string{"regulatory_agent"}, "AMM", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Primary != "regulatory_agent" {
		t.Errorf("got primary %q, want regulatory_agent", got.Primary)
	}
	if got.Confidence != 1 {
		t.Errorf("confidence not clamped: got %f", got.Confidence)
	}
}

func TestClassifyRejectsGarbage(t *testing.T) {
	for _, content := range []string{"not json at all", `{"confidence":0.5}`, ""} {
		c := &stubCompleter{content: content}
		if _, err := Classify(context.Background(), c, []string{"a"}, "q", ""); err == nil {
			t.Errorf("content %q: expected parse error", content)
		}
	}
}

func TestClassifyPropagatesCompletionError(t *testing.T) {
	c := &stubCompleter{err: fmt.Errorf("timeout")}
	if _, err := Classify(context.Background(), c, []string{"a"}, "q", ""); err == nil {
		t.Fatal("expected error")
	}
}
