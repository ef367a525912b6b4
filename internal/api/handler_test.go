package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/terrava/agrocore/internal/agridata"
	"github.com/terrava/agrocore/internal/consensus"
	"github.com/terrava/agrocore/internal/decisiontree"
	"github.com/terrava/agrocore/internal/dispatcher"
	"github.com/terrava/agrocore/internal/pipeline"
	"go.uber.org/zap"
)

// newTestHandler creates a Handler wired with stub collaborators (no
// Redis/Postgres/Qdrant, no completion service).
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewNop()

	pipe := pipeline.New(&agridata.StubWeather{}, &agridata.StubRegulatory{},
		&agridata.StubFarm{}, nil, 0, logger)
	cons := consensus.New(nil, 0, logger)
	d := dispatcher.New(nil, decisiontree.New(logger), pipe, cons, logger)

	return NewHandler(d, nil, logger).Router()
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
	if body["service"] != "agrocore" {
		t.Errorf("expected service agrocore, got %q", body["service"])
	}
}

func TestListRoutes(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := getJSON(t, ts, "/api/routes")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var routes []RouteInfo
	decodeJSON(t, resp, &routes)
	if len(routes) == 0 {
		t.Fatal("expected a non-empty route registry")
	}

	seen := map[string]RouteInfo{}
	for _, ri := range routes {
		seen[ri.Name] = ri
	}
	if _, ok := seen["weather_agent"]; !ok {
		t.Error("weather_agent missing from registry")
	}
	if ri, ok := seen["consensus_workflow"]; !ok || ri.Kind != "workflow" {
		t.Errorf("consensus_workflow should be listed as a workflow, got %+v", ri)
	}
}

func TestQueryEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/query", map[string]interface{}{
		"query": "Quelles sont les prévisions météo pour cette semaine ?",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result map[string]interface{}
	decodeJSON(t, resp, &result)

	if result["route_taken"] != "weather_agent" {
		t.Errorf("route_taken = %v, want weather_agent", result["route_taken"])
	}
	if result["response"] == "" {
		t.Error("expected a non-empty response")
	}
	if result["status"] != "ok" {
		t.Errorf("status = %v, want ok", result["status"])
	}
}

func TestQueryEndpointValidation(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/query", map[string]string{"query": "   "})
	if resp.StatusCode != 400 {
		t.Errorf("blank query: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Post(ts.URL+"/api/query", "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("malformed JSON: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConsensusEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/consensus", map[string]interface{}{
		"query":   "Quel traitement appliquer sur le blé cette semaine ?",
		"context": map[string]string{"conversation_id": "conv-42"},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result map[string]interface{}
	decodeJSON(t, resp, &result)

	if result["conversation_id"] != "conv-42" {
		t.Errorf("conversation_id = %v, want conv-42", result["conversation_id"])
	}
	if result["consensus_reached"] != true {
		t.Errorf("consensus_reached = %v, want true", result["consensus_reached"])
	}
	responses, ok := result["agent_responses"].(map[string]interface{})
	if !ok {
		t.Fatalf("agent_responses missing: %v", result)
	}
	if _, ok := responses["moderator"]; !ok {
		t.Error("moderator missing from agent_responses")
	}
	scores, ok := result["confidence_scores"].(map[string]interface{})
	if !ok || len(scores) != 3 {
		t.Errorf("confidence_scores = %v, want 3 entries", result["confidence_scores"])
	}
}

type stubSnapshotter struct {
	counters map[string]int64
	err      error
}

func (s *stubSnapshotter) Snapshot(_ context.Context) (map[string]int64, error) {
	return s.counters, s.err
}

func TestStatsEndpoint(t *testing.T) {
	logger := zap.NewNop()
	pipe := pipeline.New(&agridata.StubWeather{}, &agridata.StubRegulatory{},
		&agridata.StubFarm{}, nil, 0, logger)
	d := dispatcher.New(nil, decisiontree.New(logger), pipe, consensus.New(nil, 0, logger), logger)
	h := NewHandler(d, nil, logger).WithStats(&stubSnapshotter{
		counters: map[string]int64{"route:weather_agent": 7, "consensus:reached": 2},
	})
	ts := httptest.NewServer(h.Router())
	defer ts.Close()

	resp := getJSON(t, ts, "/api/stats")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Counters map[string]int64 `json:"counters"`
	}
	decodeJSON(t, resp, &body)
	if body.Counters["route:weather_agent"] != 7 {
		t.Errorf("counters = %v, want route:weather_agent 7", body.Counters)
	}
}

func TestStatsEndpointWithoutSink(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := getJSON(t, ts, "/api/stats")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without metrics, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConversationEndpointWithoutStore(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := getJSON(t, ts, "/api/conversations/conv-1")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a store, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
