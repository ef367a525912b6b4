// Package pipeline is the single-request domain pipeline: analyze the query,
// fan out to one or more domain stages, and converge on synthesis. All
// failures degrade to the error handler; the caller always gets a state back.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/terrava/agrocore/internal/agridata"
	"github.com/terrava/agrocore/internal/analysis"
	"github.com/terrava/agrocore/internal/graph"
	"github.com/terrava/agrocore/internal/provider"
	"github.com/terrava/agrocore/internal/route"
	"go.uber.org/zap"
)

// Stage names.
const (
	StageAnalyze      = "analyze_query"
	StageWeather      = "weather"
	StageRegulatory   = "regulatory"
	StageFarmData     = "farm_data"
	StageSynthesis    = "synthesis"
	StageErrorHandler = "error_handler"
)

// productTerms trigger weather→regulatory chaining; sprayTerms trigger
// regulatory→weather chaining.
var productTerms = []string{"produit", "traitement", "dose", "amm", "phyto", "fongicide", "herbicide"}
var sprayTerms = []string{"pulvéris", "pulveris", "fenêtre", "fenetre", "vent", "pluie", "météo", "meteo"}

// Pipeline owns the stage graph for domain request handling. One Pipeline is
// built at startup and shared; per-run state is passed through Run.
type Pipeline struct {
	weather    agridata.WeatherService
	regulatory agridata.RegulatoryService
	farm       agridata.FarmService
	completer  provider.Completer

	engine      *graph.Engine[*State]
	callTimeout time.Duration
	logger      *zap.Logger
}

// New wires the domain pipeline. Any collaborator may be nil; its stage then
// records an error and the run degrades.
func New(weather agridata.WeatherService, regulatory agridata.RegulatoryService,
	farm agridata.FarmService, completer provider.Completer,
	callTimeout time.Duration, logger *zap.Logger) *Pipeline {
	if callTimeout == 0 {
		callTimeout = 15 * time.Second
	}
	p := &Pipeline{
		weather:     weather,
		regulatory:  regulatory,
		farm:        farm,
		completer:   completer,
		callTimeout: callTimeout,
		logger:      logger,
	}
	p.engine = p.buildGraph()
	return p
}

// Run executes the pipeline for one query and returns the final state.
func (p *Pipeline) Run(ctx context.Context, query string, qctx map[string]string) *State {
	state := NewState(query, qctx)
	p.engine.Run(ctx, StageAnalyze, state)
	return state
}

// RunForDomain executes the pipeline with the fan-out committed to one domain,
// used when a router already picked a single-domain route.
func (p *Pipeline) RunForDomain(ctx context.Context, query string, qctx map[string]string, domain analysis.Domain) *State {
	state := NewState(query, qctx)
	state.ForcedDomain = domain
	p.engine.Run(ctx, StageAnalyze, state)
	return state
}

func (p *Pipeline) buildGraph() *graph.Engine[*State] {
	e := graph.New[*State](StageErrorHandler, p.logger)

	e.AddStage(StageAnalyze, p.analyzeStage)
	e.AddStage(StageWeather, p.weatherStage)
	e.AddStage(StageRegulatory, p.regulatoryStage)
	e.AddStage(StageFarmData, p.farmDataStage)
	e.AddStage(StageSynthesis, p.synthesisStage)
	e.AddStage(StageErrorHandler, p.errorHandlerStage)

	// Fan out to exactly one domain stage, or straight to synthesis.
	e.AddConditionalEdge(StageAnalyze, func(s *State) string {
		switch s.domain() {
		case analysis.DomainWeather:
			return StageWeather
		case analysis.DomainRegulatory:
			return StageRegulatory
		case analysis.DomainFarmData:
			return StageFarmData
		default:
			return StageSynthesis
		}
	})

	// A weather answer chains into regulatory when the query also talks about
	// products; the reverse chain fires for spray-window terms. Each chain
	// fires at most once: a stage already holding its result goes to synthesis.
	e.AddConditionalEdge(StageWeather, func(s *State) string {
		if s.RegulatoryResult == nil && containsAny(s.Query, productTerms) {
			return StageRegulatory
		}
		return StageSynthesis
	})
	e.AddConditionalEdge(StageRegulatory, func(s *State) string {
		if s.WeatherResult == nil && containsAny(s.Query, sprayTerms) {
			return StageWeather
		}
		return StageSynthesis
	})
	e.AddEdge(StageFarmData, StageSynthesis)
	// synthesis and error_handler are terminal.

	return e
}

func (p *Pipeline) analyzeStage(_ context.Context, s *State) error {
	s.Analysis = analysis.Analyze(s.Query, s.Context)
	return nil
}

func (p *Pipeline) weatherStage(ctx context.Context, s *State) error {
	if p.weather == nil {
		return fmt.Errorf("weather service not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	location := s.Context["region"]
	if location == "" {
		location = "France"
	}
	report, err := p.weather.Forecast(callCtx, location, 7)
	if err != nil {
		return fmt.Errorf("forecast %s: %w", location, err)
	}
	s.WeatherResult = report
	return nil
}

func (p *Pipeline) regulatoryStage(ctx context.Context, s *State) error {
	if p.regulatory == nil {
		return fmt.Errorf("regulatory service not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	products, err := p.regulatory.LookupProducts(callCtx, s.Query)
	if err != nil {
		return fmt.Errorf("ephy lookup: %w", err)
	}
	s.RegulatoryResult = products
	if s.RegulatoryResult == nil {
		s.RegulatoryResult = []agridata.Product{}
	}
	return nil
}

func (p *Pipeline) farmDataStage(ctx context.Context, s *State) error {
	if p.farm == nil {
		return fmt.Errorf("farm data service not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	farmID := s.Context["farm_id"]
	parcels, err := p.farm.Parcels(callCtx, farmID)
	if err != nil {
		return fmt.Errorf("parcels %s: %w", farmID, err)
	}
	s.FarmResult = parcels
	if s.FarmResult == nil {
		s.FarmResult = []agridata.Parcel{}
	}
	return nil
}

// synthesisStage produces the final natural-language answer plus extracted
// recommendation bullets.
func (p *Pipeline) synthesisStage(ctx context.Context, s *State) error {
	if p.completer == nil {
		// Without a completion service, fall back to a structured summary.
		s.Response = p.fallbackSummary(s)
		s.Recommendations = extractRecommendations(s.Response)
		s.Confidence = synthConfidence(s)
		s.AgentType = agentFor(s.domain())
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	resp, err := p.completer.Complete(callCtx, &provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "system", Content: "Tu es un conseiller agricole. Réponds en français, de façon concise, et termine par des recommandations en liste à puces (lignes commençant par '- ')."},
			{Role: "user", Content: p.synthesisPrompt(s)},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return fmt.Errorf("synthesis completion: %w", err)
	}

	s.Messages = append(s.Messages, provider.Message{Role: "assistant", Content: resp.Content})
	s.Response = resp.Content
	s.Recommendations = extractRecommendations(resp.Content)
	s.Confidence = synthConfidence(s)
	s.AgentType = agentFor(s.domain())
	return nil
}

// agentFor names the advisor persona that answered, by domain.
func agentFor(d analysis.Domain) route.Destination {
	switch d {
	case analysis.DomainWeather:
		return route.WeatherAgent
	case analysis.DomainRegulatory:
		return route.RegulatoryAgent
	case analysis.DomainFarmData:
		return route.FarmDataAgent
	}
	return route.GeneralAgent
}

// errorHandlerStage produces the apologetic fallback citing collected errors.
func (p *Pipeline) errorHandlerStage(_ context.Context, s *State) error {
	var b strings.Builder
	b.WriteString("Désolé, je n'ai pas pu traiter complètement votre demande.")
	if len(s.Errors) > 0 {
		b.WriteString(" Problèmes rencontrés : ")
		b.WriteString(strings.Join(s.Errors, " ; "))
		b.WriteString(".")
	}
	b.WriteString(" Veuillez reformuler ou réessayer plus tard.")

	s.Response = b.String()
	s.Confidence = 0.3
	s.AgentType = route.GeneralAgent
	return nil
}

func (p *Pipeline) synthesisPrompt(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question de l'agriculteur : %s\n", s.Query)

	if s.WeatherResult != nil {
		b.WriteString("\nPrévisions météo :\n")
		for _, d := range s.WeatherResult.Days {
			fmt.Fprintf(&b, "- %s : %.0f à %.0f °C, %.1f mm de pluie, vent %.0f km/h\n",
				d.Date, d.TempMin, d.TempMax, d.PrecipMM, d.WindKPH)
		}
	}
	if s.RegulatoryResult != nil {
		b.WriteString("\nProduits EPHY trouvés :\n")
		if len(s.RegulatoryResult) == 0 {
			b.WriteString("- aucun produit correspondant\n")
		}
		for _, prod := range s.RegulatoryResult {
			fmt.Fprintf(&b, "- %s (AMM %s) : autorisé=%t, ZNT %.0f m, dose max %s\n",
				prod.Name, prod.AMMCode, prod.Authorized, prod.ZNTMeters, prod.MaxDose)
		}
	}
	if s.FarmResult != nil {
		b.WriteString("\nParcelles de l'exploitation :\n")
		for _, parcel := range s.FarmResult {
			fmt.Fprintf(&b, "- %s : %s, %.1f ha, rendement %.1f t/ha\n",
				parcel.Name, parcel.Crop, parcel.AreaHa, parcel.YieldTHa)
		}
	}
	return b.String()
}

func (p *Pipeline) fallbackSummary(s *State) string {
	var b strings.Builder
	b.WriteString("Voici les informations collectées :\n")
	b.WriteString(p.synthesisPrompt(s))
	return b.String()
}

// synthConfidence degrades when any stage recorded a failure along the way.
func synthConfidence(s *State) float64 {
	if s.Degraded() {
		return 0.6
	}
	return 0.85
}

// extractRecommendations pulls bullet lines out of a synthesized answer.
func extractRecommendations(text string) []string {
	var recs []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range []string{"- ", "• ", "* "} {
			if strings.HasPrefix(trimmed, prefix) {
				recs = append(recs, strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)))
				break
			}
		}
	}
	return recs
}

func containsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
