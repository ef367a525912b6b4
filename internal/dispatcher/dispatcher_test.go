package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/terrava/agrocore/internal/agridata"
	"github.com/terrava/agrocore/internal/consensus"
	"github.com/terrava/agrocore/internal/decisiontree"
	"github.com/terrava/agrocore/internal/metrics"
	"github.com/terrava/agrocore/internal/pipeline"
	"github.com/terrava/agrocore/internal/route"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu        sync.Mutex
	routes    []route.Destination
	cacheHits int
	completed []string
	consensus int
}

func (r *recordingSink) RoutingDecision(_ context.Context, dest route.Destination, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, dest)
	if hit {
		r.cacheHits++
	}
}

func (r *recordingSink) QueryCompleted(_ context.Context, agentType string, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, agentType)
}

func (r *recordingSink) ConsensusRun(_ context.Context, _ bool, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consensus++
}

func newTestDispatcher() (*Dispatcher, *recordingSink) {
	logger := zap.NewNop()
	pipe := pipeline.New(&agridata.StubWeather{}, &agridata.StubRegulatory{},
		&agridata.StubFarm{}, nil, 0, logger)
	cons := consensus.New(nil, 0, logger)
	sink := &recordingSink{}
	d := New(nil, decisiontree.New(logger), pipe, cons, logger).WithMetrics(sink)
	return d, sink
}

func TestRouteAndExecuteWeatherQuery(t *testing.T) {
	d, sink := newTestDispatcher()

	res := d.RouteAndExecute(context.Background(),
		"Quelles sont les prévisions météo pour cette semaine ?", nil)

	if res.RouteTaken != route.WeatherAgent {
		t.Errorf("route = %s, want %s", res.RouteTaken, route.WeatherAgent)
	}
	if res.Response == "" {
		t.Error("expected a non-empty response")
	}
	if res.Status != StatusOK {
		t.Errorf("status = %s, want ok (errors: %v)", res.Status, res.Errors)
	}
	if len(sink.routes) != 1 || sink.routes[0] != route.WeatherAgent {
		t.Errorf("metrics routes = %v", sink.routes)
	}
	if len(sink.completed) != 1 {
		t.Errorf("metrics completions = %v", sink.completed)
	}
}

func TestRouteAndExecuteNeverErrorsOnFailingServices(t *testing.T) {
	logger := zap.NewNop()
	weather := &agridata.StubWeather{Err: errors.New("open-meteo unreachable")}
	pipe := pipeline.New(weather, &agridata.StubRegulatory{},
		&agridata.StubFarm{}, nil, 0, logger)
	d := New(nil, decisiontree.New(logger), pipe, consensus.New(nil, 0, logger), logger)

	res := d.RouteAndExecute(context.Background(), "météo demain sur ma parcelle ?", nil)

	if res.Response == "" {
		t.Error("degraded run must still produce a response")
	}
	if res.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded", res.Status)
	}
	if len(res.Errors) == 0 {
		t.Error("expected captured errors in the result")
	}
}

func TestRouteAndExecuteUrgentGoesToEmergency(t *testing.T) {
	d, _ := newTestDispatcher()

	res := d.RouteAndExecute(context.Background(),
		"urgent: gel annoncé cette nuit, que faire ?", nil)

	if res.RouteTaken != route.EmergencyAgent {
		t.Errorf("route = %s, want %s", res.RouteTaken, route.EmergencyAgent)
	}
}

func TestRouteAndExecuteConsensusRoute(t *testing.T) {
	d, sink := newTestDispatcher()

	query := "Analyse la météo puis vérifie la réglementation et ensuite compare le rendement des parcelles"
	res := d.RouteAndExecute(context.Background(), query, nil)

	if res.RouteTaken != route.ConsensusWorkflow {
		t.Fatalf("route = %s, want %s", res.RouteTaken, route.ConsensusWorkflow)
	}
	if res.Response == "" {
		t.Error("consensus route must produce a response")
	}
	if sink.consensus != 1 {
		t.Errorf("consensus metric count = %d, want 1", sink.consensus)
	}
	// The result must expose the stages the run actually visited, not a
	// summary placeholder.
	if len(res.ProcessingSteps) < 3 {
		t.Fatalf("processing steps = %v, want the visited stage trail", res.ProcessingSteps)
	}
	if res.ProcessingSteps[0] != consensus.StageWeatherExpert {
		t.Errorf("steps start with %q, want %q", res.ProcessingSteps[0], consensus.StageWeatherExpert)
	}
	if last := res.ProcessingSteps[len(res.ProcessingSteps)-1]; last != consensus.StageModerator {
		t.Errorf("steps end with %q, want %q", last, consensus.StageModerator)
	}
}

func TestRunConsensusResult(t *testing.T) {
	d, _ := newTestDispatcher()

	res := d.RunConsensus(context.Background(), "Quel traitement appliquer ?", nil, "")

	if !res.ConsensusReached {
		t.Error("expected consensus to be reached")
	}
	if res.ConversationID == "" {
		t.Error("expected a conversation id")
	}
	if len(res.ConfidenceScores) != 3 {
		t.Errorf("confidence scores = %d entries, want 3", len(res.ConfidenceScores))
	}
	if _, ok := res.AgentResponses["moderator"]; !ok {
		t.Error("moderator missing from agent responses")
	}
}

func TestDecideHonorsAgentPreference(t *testing.T) {
	d, _ := newTestDispatcher()

	decision, hit := d.Decide(context.Background(), "une question générale",
		map[string]string{"agent_preference": "weather"})

	if hit {
		t.Error("no cache configured, hit must be false")
	}
	if decision.PrimaryRoute != route.WeatherAgent {
		t.Errorf("route = %s, want preference-driven %s", decision.PrimaryRoute, route.WeatherAgent)
	}
}

func TestPrependFallbackShape(t *testing.T) {
	out := prependFallback(route.WeatherAgent,
		[]route.Destination{route.RegulatoryAgent, route.FarmDataAgent, route.GeneralAgent})

	if len(out) > 3 {
		t.Errorf("fallbacks too long: %v", out)
	}
	if out[len(out)-1] != route.GeneralAgent {
		t.Errorf("fallbacks must end with general_agent: %v", out)
	}
	if out[0] != route.WeatherAgent {
		t.Errorf("displaced primary should lead the fallbacks: %v", out)
	}
	seen := map[route.Destination]bool{}
	for _, f := range out {
		if seen[f] {
			t.Errorf("duplicate fallback %s in %v", f, out)
		}
		seen[f] = true
	}
}

func TestMetricsSinkInterface(t *testing.T) {
	// NopSink and recordingSink must both satisfy the sink contract.
	var _ metrics.Sink = metrics.NopSink{}
	var _ metrics.Sink = &recordingSink{}
}

func TestQueryResultCarriesRouting(t *testing.T) {
	d, _ := newTestDispatcher()

	res := d.RouteAndExecute(context.Background(), "dois-je traiter contre le mildiou ?", nil)

	if res.Routing.PrimaryRoute == "" {
		t.Error("routing decision missing from result")
	}
	if res.Routing.Reasoning == "" {
		t.Error("routing must carry its reasoning path")
	}
	// A general primary has no distinct fallback to derive; any other primary
	// must carry a fallback chain terminating at the general agent.
	fb := res.Routing.FallbackRoutes
	if res.Routing.PrimaryRoute == route.GeneralAgent {
		if len(fb) != 0 {
			t.Errorf("general primary should have no fallbacks, got %v", fb)
		}
	} else if len(fb) == 0 || fb[len(fb)-1] != route.GeneralAgent {
		t.Errorf("fallbacks must end with general_agent: %v", fb)
	}
}
