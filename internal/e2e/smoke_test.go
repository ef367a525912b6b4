//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("AGRO_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

type queryRequest struct {
	Query   string            `json:"query"`
	Context map[string]string `json:"context,omitempty"`
	Pattern string            `json:"pattern,omitempty"`
}

type queryResponse struct {
	Response   string  `json:"response"`
	RouteTaken string  `json:"route_taken"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
}

// post sends a query to the given endpoint and decodes the response into v.
func post(t *testing.T, path string, req queryRequest, v interface{}) {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Post(baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
	}
}

func TestWeatherQuery(t *testing.T) {
	var res queryResponse
	post(t, "/api/query", queryRequest{Query: "Quelles sont les prévisions météo pour cette semaine ?"}, &res)

	if res.RouteTaken != "weather_agent" {
		t.Errorf("route_taken = %s, want weather_agent", res.RouteTaken)
	}
	if len(res.Response) == 0 {
		t.Error("expected non-empty response")
	}
	t.Logf("reply: %.200s", res.Response)
}

func TestUrgentQuery(t *testing.T) {
	var res queryResponse
	post(t, "/api/query", queryRequest{Query: "urgent : orage de grêle annoncé, que protéger en priorité ?"}, &res)

	if res.RouteTaken != "emergency_agent" {
		t.Errorf("route_taken = %s, want emergency_agent", res.RouteTaken)
	}
	t.Logf("reply: %.200s", res.Response)
}

func TestConsensusQuery(t *testing.T) {
	var res struct {
		Response         string             `json:"response"`
		ConversationID   string             `json:"conversation_id"`
		ConfidenceScores map[string]float64 `json:"confidence_scores"`
		ConsensusReached bool               `json:"consensus_reached"`
	}
	post(t, "/api/consensus", queryRequest{Query: "Quel programme fongicide pour le blé au printemps ?"}, &res)

	if !res.ConsensusReached {
		t.Error("expected consensus_reached")
	}
	if res.ConversationID == "" {
		t.Error("expected a conversation id")
	}
	if len(res.Response) <= 10 {
		t.Errorf("expected meaningful synthesis (len > 10), got len=%d: %s", len(res.Response), res.Response)
	}
	t.Logf("reply: %.300s", res.Response)
}

func TestRouteRegistry(t *testing.T) {
	resp, err := http.Get(baseURL + "/api/routes")
	if err != nil {
		t.Fatalf("GET /api/routes: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	if !strings.Contains(string(raw), "consensus_workflow") {
		t.Errorf("registry should list consensus_workflow: %s", string(raw))
	}
}
