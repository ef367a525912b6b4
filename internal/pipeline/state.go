package pipeline

import (
	"fmt"

	"github.com/terrava/agrocore/internal/agridata"
	"github.com/terrava/agrocore/internal/analysis"
	"github.com/terrava/agrocore/internal/provider"
	"github.com/terrava/agrocore/internal/route"
)

// State is the mutable aggregate owned by exactly one pipeline run. Stages
// mutate it in place; the caller reads it after the terminal stage and then
// discards it. ProcessingSteps and Errors only ever grow.
type State struct {
	Query   string
	Context map[string]string

	Messages []provider.Message
	Analysis analysis.QueryAnalysis

	// ForcedDomain overrides the analyzed domain when the dispatcher has
	// already committed to a single-domain route.
	ForcedDomain analysis.Domain

	WeatherResult    *agridata.WeatherReport
	RegulatoryResult []agridata.Product
	FarmResult       []agridata.Parcel

	Response        string
	Recommendations []string
	Confidence      float64
	AgentType       route.Destination

	ProcessingSteps []string
	Errors          []string
}

// NewState creates the run state for one query.
func NewState(query string, qctx map[string]string) *State {
	if qctx == nil {
		qctx = map[string]string{}
	}
	return &State{
		Query:   query,
		Context: qctx,
		Messages: []provider.Message{
			{Role: "user", Content: query},
		},
	}
}

// RecordStep appends a visited stage name. Implements graph.State.
func (s *State) RecordStep(stage string) {
	s.ProcessingSteps = append(s.ProcessingSteps, stage)
}

// RecordError appends a stage failure description. Implements graph.State.
func (s *State) RecordError(stage, msg string) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %s", stage, msg))
}

// Degraded reports whether any stage recorded a failure.
func (s *State) Degraded() bool { return len(s.Errors) > 0 }

func (s *State) domain() analysis.Domain {
	if s.ForcedDomain != "" {
		return s.ForcedDomain
	}
	return s.Analysis.PrimaryDomain
}
