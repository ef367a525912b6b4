// Package consensus runs the bounded multi-expert polling protocol: a fixed
// panel of advisory experts is consulted in order, a consensus check gates a
// single retry lap, and a moderator synthesizes the final recommendation.
package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/terrava/agrocore/internal/graph"
	"github.com/terrava/agrocore/internal/provider"
	"github.com/terrava/agrocore/internal/route"
	"go.uber.org/zap"
)

// Expert stage names, in fixed panel order.
const (
	StageWeatherExpert    = "weather_expert"
	StageRegulatoryExpert = "regulatory_expert"
	StageAgronomist       = "agronomist"
	StageEconomist        = "economist"
	StageConsensusCheck   = "consensus_check"
	StageModerator        = "moderator"
)

// panelOrder is the full polling order; patterns select a subset.
var panelOrder = []string{StageWeatherExpert, StageRegulatoryExpert, StageAgronomist, StageEconomist}

// expertConfidences are the fixed literal confidences per expert.
var expertConfidences = map[string]float64{
	StageWeatherExpert:    0.85,
	StageRegulatoryExpert: 0.90,
	StageAgronomist:       0.88,
	StageEconomist:        0.82,
	StageModerator:        0.92,
}

var expertPersonas = map[string]string{
	StageWeatherExpert:    "Tu es un expert météorologue agricole. Donne ton avis sur la question du point de vue météo.",
	StageRegulatoryExpert: "Tu es un expert en réglementation phytosanitaire française (AMM, ZNT, EPHY). Donne ton avis réglementaire.",
	StageAgronomist:       "Tu es un agronome de terrain. Donne ton avis agronomique pratique.",
	StageEconomist:        "Tu es un économiste agricole. Donne ton avis sur les coûts et la rentabilité.",
}

var costTerms = []string{"coût", "cout", "prix", "cost", "budget", "rentab", "économi", "economi"}

// maxExtraLaps bounds the consensus retry loop.
const maxExtraLaps = 1

// Pipeline owns the consensus stage graph. Shared across runs; per-run state
// flows through Run.
type Pipeline struct {
	completer   provider.Completer
	engine      *graph.Engine[*State]
	callTimeout time.Duration
	logger      *zap.Logger
}

// New wires the consensus pipeline.
func New(completer provider.Completer, callTimeout time.Duration, logger *zap.Logger) *Pipeline {
	if callTimeout == 0 {
		callTimeout = 15 * time.Second
	}
	p := &Pipeline{
		completer:   completer,
		callTimeout: callTimeout,
		logger:      logger,
	}
	p.engine = p.buildGraph()
	return p
}

// ResolvePanel maps a collaboration pattern to the expert stages consulted.
// The pattern restricts the panel; unknown patterns get the default panel,
// whose economist seat depends on cost-related terms in the query.
func ResolvePanel(pattern, query string) []string {
	switch pattern {
	case "weather_focus":
		return []string{StageWeatherExpert, StageAgronomist}
	case "regulatory_focus":
		return []string{StageRegulatoryExpert, StageAgronomist}
	}
	panel := []string{StageWeatherExpert, StageRegulatoryExpert, StageAgronomist}
	lower := strings.ToLower(query)
	for _, t := range costTerms {
		if strings.Contains(lower, t) {
			panel = append(panel, StageEconomist)
			break
		}
	}
	return panel
}

// Run executes one consensus round for the query and returns the final state.
func (p *Pipeline) Run(ctx context.Context, query string, qctx map[string]string, pattern string) *State {
	state := NewState(query, qctx, ResolvePanel(pattern, query))
	p.engine.Run(ctx, state.panel[0], state)
	return state
}

func (p *Pipeline) buildGraph() *graph.Engine[*State] {
	// Any uncaught stage failure lands on the moderator, which synthesizes
	// best-effort from whatever opinions exist.
	e := graph.New[*State](StageModerator, p.logger)

	for _, expert := range panelOrder {
		expert := expert
		e.AddStage(expert, func(ctx context.Context, s *State) error {
			return p.expertStage(ctx, expert, s)
		})
		e.AddConditionalEdge(expert, func(s *State) string {
			return nextPanelStage(s, expert)
		})
	}

	e.AddStage(StageConsensusCheck, p.consensusCheckStage)
	e.AddConditionalEdge(StageConsensusCheck, func(s *State) string {
		if s.ConsensusReached {
			return StageModerator
		}
		return s.panel[0]
	})

	e.AddStage(StageModerator, p.moderatorStage)
	// moderator is terminal.
	return e
}

// nextPanelStage returns the next panel member after the given expert, or the
// consensus check when the panel is exhausted.
func nextPanelStage(s *State, after string) string {
	idx := -1
	for i, name := range panelOrder {
		if name == after {
			idx = i
			break
		}
	}
	for _, name := range panelOrder[idx+1:] {
		if s.inPanel(name) {
			return name
		}
	}
	return StageConsensusCheck
}

// expertStage collects one expert opinion. A revisit on the retry lap keeps
// the existing opinion instead of re-polling.
func (p *Pipeline) expertStage(ctx context.Context, expert string, s *State) error {
	s.CurrentAgent = expert
	if _, done := s.AgentResponses[expert]; done {
		s.Record(expert, "opinion_retained", nil)
		return nil
	}

	opinion, err := p.askExpert(ctx, expert, s)
	if err != nil {
		// Degrade to a neutral opinion so one flaky expert does not abort
		// the whole panel; the failure stays visible in state errors.
		s.RecordError(expert, err.Error())
		opinion = "Avis indisponible pour cet expert."
	}
	s.AgentResponses[expert] = opinion
	s.ConfidenceScores[expert] = expertConfidences[expert]
	s.Record(expert, "opinion_given", map[string]string{
		"confidence": fmt.Sprintf("%.2f", expertConfidences[expert]),
	})
	return nil
}

func (p *Pipeline) askExpert(ctx context.Context, expert string, s *State) (string, error) {
	if p.completer == nil {
		return "", fmt.Errorf("completion service not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	var b strings.Builder
	fmt.Fprintf(&b, "Question : %s\n", s.Query)
	if len(s.AgentResponses) > 0 {
		b.WriteString("\nAvis déjà exprimés :\n")
		for _, name := range panelOrder {
			if op, ok := s.AgentResponses[name]; ok {
				fmt.Fprintf(&b, "[%s] %s\n", name, op)
			}
		}
	}

	resp, err := p.completer.Complete(callCtx, &provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "system", Content: expertPersonas[expert]},
			{Role: "user", Content: b.String()},
		},
		MaxTokens: 512,
	})
	if err != nil {
		return "", fmt.Errorf("expert %s: %w", expert, err)
	}
	return resp.Content, nil
}

// consensusCheckStage decides whether enough experts have spoken. Below the
// threshold it allows exactly one retry lap, then forces best-effort
// moderation by failing into the error path.
func (p *Pipeline) consensusCheckStage(_ context.Context, s *State) error {
	// A restricted panel can never seat three experts, so the threshold
	// adapts to the panel size.
	threshold := 3
	if len(s.panel) < threshold {
		threshold = len(s.panel)
	}

	reached := len(s.AgentResponses) >= threshold
	s.ConsensusReached = reached
	s.Record(StageConsensusCheck, "consensus_evaluated", map[string]string{
		"experts_consulted": fmt.Sprintf("%d", len(s.AgentResponses)),
		"reached":           fmt.Sprintf("%t", reached),
	})

	if !reached {
		if s.laps >= maxExtraLaps {
			return fmt.Errorf("consensus not reached after %d extra lap(s)", s.laps)
		}
		s.laps++
	}
	return nil
}

// moderatorStage synthesizes the final recommendation from all opinions. It
// never fails: a completion error falls back to concatenating the opinions.
func (p *Pipeline) moderatorStage(ctx context.Context, s *State) error {
	s.CurrentAgent = StageModerator

	synthesis, err := p.moderate(ctx, s)
	if err != nil {
		p.logger.Warn("moderator completion failed, using fallback synthesis", zap.Error(err))
		synthesis = p.fallbackModeration(s)
	}

	// The moderator speaks in agent_responses but holds no panel seat, so it
	// contributes no per-expert confidence score.
	s.AgentResponses[StageModerator] = synthesis
	s.FinalRecommendation = synthesis
	s.Response = synthesis
	s.Confidence = expertConfidences[StageModerator]
	if s.Degraded() {
		s.Confidence = 0.6
	}
	s.AgentType = route.ConsensusWorkflow
	s.ConsensusReached = true
	s.Record(StageModerator, "synthesis", map[string]string{
		"opinions": fmt.Sprintf("%d", len(s.AgentResponses)-1),
	})
	return nil
}

func (p *Pipeline) moderate(ctx context.Context, s *State) (string, error) {
	if p.completer == nil {
		return "", fmt.Errorf("completion service not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	var b strings.Builder
	fmt.Fprintf(&b, "Question de l'agriculteur : %s\n\nAvis des experts :\n", s.Query)
	for _, name := range sortedOpinionKeys(s.AgentResponses) {
		fmt.Fprintf(&b, "[%s] %s\n", name, s.AgentResponses[name])
	}
	b.WriteString("\nSynthétise ces avis en une recommandation unique et cohérente, en français.")

	resp, err := p.completer.Complete(callCtx, &provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "system", Content: "Tu es le modérateur d'un panel d'experts agricoles. Produis une synthèse concise avec des recommandations en liste à puces."},
			{Role: "user", Content: b.String()},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// fallbackModeration concatenates the collected opinions when synthesis is
// impossible.
func (p *Pipeline) fallbackModeration(s *State) string {
	if len(s.AgentResponses) == 0 {
		return "Aucun avis d'expert n'a pu être collecté. Veuillez réessayer plus tard."
	}
	var b strings.Builder
	b.WriteString("Synthèse indisponible, avis bruts des experts :\n")
	for _, name := range sortedOpinionKeys(s.AgentResponses) {
		fmt.Fprintf(&b, "- [%s] %s\n", name, s.AgentResponses[name])
	}
	return b.String()
}

func sortedOpinionKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
