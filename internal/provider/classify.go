package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Completer is the minimal completion surface consumed by classification and
// synthesis callers. *Router satisfies it.
type Completer interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// Classification is the structured result of the label-classification contract.
type Classification struct {
	Primary    string   `json:"primary"`
	Confidence float64  `json:"confidence"`
	Secondary  []string `json:"secondary"`
}

// Classify asks the completion service to place a query into one of the named
// labels. The model must answer with a strict JSON object; any deviation is
// returned as an error so callers can degrade instead of guessing.
func Classify(ctx context.Context, c Completer, labels []string, query, contextText string) (*Classification, error) {
	prompt := fmt.Sprintf(`Classify the user query into exactly one of these destinations: %s.

Query: %s
Context: %s

Answer with only a JSON object:
{"primary":"<destination>","confidence":<0..1>,"secondary":["<destination>",...]}`,
		strings.Join(labels, ", "), query, contextText)

	resp, err := c.Complete(ctx, &CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "You are a routing classifier for an agricultural advisory service. Reply with JSON only."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, fmt.Errorf("classify completion: %w", err)
	}

	raw := extractJSON(resp.Content)
	var out Classification
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("classify parse: %w", err)
	}
	if out.Primary == "" {
		return nil, fmt.Errorf("classify parse: missing primary")
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return &out, nil
}

// extractJSON strips markdown fences and surrounding prose, keeping the first
// top-level JSON object. Models wrap JSON in fences often enough that parsing
// the raw content directly fails.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			return s[i : j+1]
		}
	}
	return s
}
