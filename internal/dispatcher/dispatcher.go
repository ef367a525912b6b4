// Package dispatcher is the service façade: it combines both routers, picks
// an execution path, and runs the matching pipeline. Run-level failures never
// surface as errors; the result carries a status of ok or degraded instead.
package dispatcher

import (
	"context"
	"time"

	"github.com/terrava/agrocore/internal/analysis"
	"github.com/terrava/agrocore/internal/cache"
	"github.com/terrava/agrocore/internal/classifier"
	"github.com/terrava/agrocore/internal/consensus"
	"github.com/terrava/agrocore/internal/conversation"
	"github.com/terrava/agrocore/internal/decisiontree"
	"github.com/terrava/agrocore/internal/metrics"
	"github.com/terrava/agrocore/internal/pipeline"
	"github.com/terrava/agrocore/internal/route"
	"go.uber.org/zap"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"

	// overrideMargin is how much more confident the classifier must be than
	// the decision tree before its primary displaces the tree's. Below the
	// margin the tree wins so the route stays explainable.
	overrideMargin = 0.2
)

// QueryResult is the dispatcher's answer for a routed query.
type QueryResult struct {
	Response        string            `json:"response"`
	RouteTaken      route.Destination `json:"route_taken"`
	Confidence      float64           `json:"confidence"`
	Recommendations []string          `json:"recommendations,omitempty"`
	ProcessingSteps []string          `json:"processing_steps"`
	Errors          []string          `json:"errors,omitempty"`
	Status          string            `json:"status"`
	Routing         route.Decision    `json:"routing"`
	CacheHit        bool              `json:"cache_hit"`
}

// ConsensusResult is the dispatcher's answer for a consensus run.
type ConsensusResult struct {
	Response         string                   `json:"response"`
	ConversationID   string                   `json:"conversation_id"`
	AgentResponses   map[string]string        `json:"agent_responses"`
	ConfidenceScores map[string]float64       `json:"confidence_scores"`
	ConsensusReached bool                     `json:"consensus_reached"`
	Confidence       float64                  `json:"confidence"`
	ProcessingSteps  []string                 `json:"processing_steps"`
	History          []consensus.HistoryEntry `json:"collaboration_history"`
	Errors           []string                 `json:"errors,omitempty"`
	Status           string                   `json:"status"`
}

// Dispatcher wires the routers and pipelines together.
type Dispatcher struct {
	classifier *classifier.Classifier
	tree       *decisiontree.Router
	pipeline   *pipeline.Pipeline
	consensus  *consensus.Pipeline

	cache   *cache.RoutingCache
	memory  *conversation.Store
	metrics metrics.Sink
	logger  *zap.Logger
}

// New builds a Dispatcher. Cache, memory and metrics are optional and
// attached with the With* methods.
func New(cls *classifier.Classifier, tree *decisiontree.Router,
	pipe *pipeline.Pipeline, cons *consensus.Pipeline, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		classifier: cls,
		tree:       tree,
		pipeline:   pipe,
		consensus:  cons,
		metrics:    metrics.NopSink{},
		logger:     logger,
	}
}

// WithCache attaches a routing-decision cache.
func (d *Dispatcher) WithCache(c *cache.RoutingCache) *Dispatcher {
	d.cache = c
	return d
}

// WithMemory attaches conversation history storage.
func (d *Dispatcher) WithMemory(s *conversation.Store) *Dispatcher {
	d.memory = s
	return d
}

// WithMetrics attaches a metrics sink.
func (d *Dispatcher) WithMetrics(m metrics.Sink) *Dispatcher {
	d.metrics = m
	return d
}

// Decide resolves the route for a query without executing it. The second
// return reports whether the decision came from the cache.
func (d *Dispatcher) Decide(ctx context.Context, query string, qctx map[string]string) (route.Decision, bool) {
	key := cache.Key(query, qctx)
	if d.cache != nil {
		if cached, ok := d.cache.Get(ctx, key); ok {
			return *cached, true
		}
	}

	qa := analysis.Analyze(query, qctx)
	decision := d.tree.Route(qa, decisiontree.Preferences{
		AgentPreference: qctx["agent_preference"],
		Pattern:         qctx["collaboration_pattern"],
	})

	if d.classifier != nil {
		cls := d.classifier.Classify(ctx, query, qctx)
		if cls.Primary != decision.PrimaryRoute && cls.Confidence > decision.Confidence+overrideMargin {
			d.logger.Info("classifier overrode tree route",
				zap.String("tree", string(decision.PrimaryRoute)),
				zap.String("classifier", string(cls.Primary)),
				zap.Float64("margin", cls.Confidence-decision.Confidence))
			decision.FallbackRoutes = prependFallback(decision.PrimaryRoute, decision.FallbackRoutes)
			decision.PrimaryRoute = cls.Primary
			decision.Confidence = cls.Confidence
			decision.Reasoning = "classifier override: " + decision.Reasoning
		}
	}

	if d.cache != nil {
		d.cache.Put(ctx, key, &decision)
	}
	return decision, false
}

// RouteAndExecute routes the query and runs the matching pipeline.
func (d *Dispatcher) RouteAndExecute(ctx context.Context, query string, qctx map[string]string) *QueryResult {
	started := time.Now()
	decision, cacheHit := d.Decide(ctx, query, qctx)
	d.metrics.RoutingDecision(ctx, decision.PrimaryRoute, cacheHit)

	if decision.PrimaryRoute == route.ConsensusWorkflow {
		cr := d.RunConsensus(ctx, query, qctx, qctx["collaboration_pattern"])
		return &QueryResult{
			Response:        cr.Response,
			RouteTaken:      route.ConsensusWorkflow,
			Confidence:      cr.Confidence,
			ProcessingSteps: cr.ProcessingSteps,
			Errors:          cr.Errors,
			Status:          cr.Status,
			Routing:         decision,
			CacheHit:        cacheHit,
		}
	}

	st := d.execute(ctx, decision.PrimaryRoute, query, qctx)

	status := StatusOK
	if st.Degraded() {
		status = StatusDegraded
	}
	d.metrics.QueryCompleted(ctx, string(st.AgentType), st.Degraded())
	d.remember(ctx, qctx, query, st.Response, string(st.AgentType), st.Degraded())
	d.logger.Info("query dispatched",
		zap.String("route", string(decision.PrimaryRoute)),
		zap.String("status", status),
		zap.Duration("elapsed", time.Since(started)))

	return &QueryResult{
		Response:        st.Response,
		RouteTaken:      decision.PrimaryRoute,
		Confidence:      st.Confidence,
		Recommendations: st.Recommendations,
		ProcessingSteps: st.ProcessingSteps,
		Errors:          st.Errors,
		Status:          status,
		Routing:         decision,
		CacheHit:        cacheHit,
	}
}

// RunConsensus executes the multi-expert consensus pipeline directly.
func (d *Dispatcher) RunConsensus(ctx context.Context, query string, qctx map[string]string, pattern string) *ConsensusResult {
	st := d.consensus.Run(ctx, query, qctx, pattern)

	status := StatusOK
	if st.Degraded() {
		status = StatusDegraded
	}
	d.metrics.ConsensusRun(ctx, st.ConsensusReached, len(st.ConfidenceScores))
	d.rememberConsensus(ctx, st)

	return &ConsensusResult{
		Response:         st.Response,
		ConversationID:   st.ConversationID,
		AgentResponses:   st.AgentResponses,
		ConfidenceScores: st.ConfidenceScores,
		ConsensusReached: st.ConsensusReached,
		Confidence:       st.Confidence,
		ProcessingSteps:  st.ProcessingSteps,
		History:          st.History,
		Errors:           st.Errors,
		Status:           status,
	}
}

// execute maps a destination onto the domain pipeline. The switch is closed
// over the route enum so a new destination fails loudly here, not silently.
func (d *Dispatcher) execute(ctx context.Context, dest route.Destination, query string, qctx map[string]string) *pipeline.State {
	switch dest {
	case route.WeatherAgent, route.WeatherWorkflow:
		return d.pipeline.RunForDomain(ctx, query, qctx, analysis.DomainWeather)
	case route.RegulatoryAgent, route.RegulatoryWorkflow:
		return d.pipeline.RunForDomain(ctx, query, qctx, analysis.DomainRegulatory)
	case route.FarmDataAgent, route.FarmDataWorkflow:
		return d.pipeline.RunForDomain(ctx, query, qctx, analysis.DomainFarmData)
	case route.GeneralAgent, route.EmergencyAgent:
		return d.pipeline.Run(ctx, query, qctx)
	default:
		d.logger.Warn("unmapped destination, running general pipeline", zap.String("destination", string(dest)))
		return d.pipeline.Run(ctx, query, qctx)
	}
}

func (d *Dispatcher) remember(ctx context.Context, qctx map[string]string, query, response, agentType string, degraded bool) {
	if d.memory == nil {
		return
	}
	id := qctx["conversation_id"]
	if id == "" {
		return
	}
	if err := d.memory.Append(ctx, id, conversation.Record{
		Query:     query,
		Response:  response,
		AgentType: agentType,
		Degraded:  degraded,
	}); err != nil {
		d.logger.Warn("conversation append failed", zap.Error(err))
	}
}

func (d *Dispatcher) rememberConsensus(ctx context.Context, st *consensus.State) {
	if d.memory == nil {
		return
	}
	if err := d.memory.Append(ctx, st.ConversationID, conversation.Record{
		Query:     st.Query,
		Response:  st.Response,
		AgentType: "consensus",
		Degraded:  st.Degraded(),
	}); err != nil {
		d.logger.Warn("conversation append failed", zap.Error(err))
	}
}

func prependFallback(dest route.Destination, existing []route.Destination) []route.Destination {
	var out []route.Destination
	if dest != route.GeneralAgent {
		out = append(out, dest)
	}
	for _, f := range existing {
		if f != dest && f != route.GeneralAgent {
			out = append(out, f)
		}
	}
	if len(out) > 2 {
		out = out[:2]
	}
	return append(out, route.GeneralAgent)
}
