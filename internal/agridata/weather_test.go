package agridata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestWeatherClientForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast" {
			t.Errorf("got path %q, want /forecast", r.URL.Path)
		}
		if got := r.URL.Query().Get("location"); got != "Rennes" {
			t.Errorf("got location %q, want Rennes", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"location": "Rennes",
			"daily": []map[string]any{
				{"date": "2026-08-29", "temperature_min": 11.0, "temperature_max": 21.5, "precipitation": 0.4, "wind_speed": 15.0},
				{"date": "2026-08-30", "temperature_min": 12.0, "temperature_max": 19.0, "precipitation": 6.2, "wind_speed": 30.0},
			},
		})
	}))
	defer srv.Close()

	c := NewWeatherClient(srv.URL, 0, zap.NewNop())
	report, err := c.Forecast(context.Background(), "Rennes", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Days) != 2 {
		t.Fatalf("got %d days, want 2", len(report.Days))
	}
	if report.Days[1].PrecipMM != 6.2 {
		t.Errorf("got precip %f, want 6.2", report.Days[1].PrecipMM)
	}
}

func TestWeatherClientEndpointNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast" {
			t.Errorf("got path %q, want /forecast", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"location": "Rennes"})
	}))
	defer srv.Close()

	for _, endpoint := range []string{srv.URL, srv.URL + "/", srv.URL + "/forecast"} {
		c := NewWeatherClient(endpoint, 0, zap.NewNop())
		if _, err := c.Forecast(context.Background(), "Rennes", 1); err != nil {
			t.Errorf("endpoint %q: unexpected error: %v", endpoint, err)
		}
	}
}

func TestWeatherClientUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewWeatherClient(srv.URL, 0, zap.NewNop())
	_, err := c.Forecast(context.Background(), "Rennes", 3)

	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("got %T, want *UnavailableError", err)
	}
	if unavailable.Service != "weather" {
		t.Errorf("got service %q, want weather", unavailable.Service)
	}
}

func TestStubRegulatoryMatchesByNameOrCode(t *testing.T) {
	stub := &StubRegulatory{Products: []Product{
		{Name: "Fongistop", AMMCode: "2100123", Authorized: true, ZNTMeters: 5},
		{Name: "Herbiclair", AMMCode: "2090456", Authorized: false, ZNTMeters: 20},
	}}

	hits, err := stub.LookupProducts(context.Background(), "Puis-je traiter avec Fongistop ?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].AMMCode != "2100123" {
		t.Errorf("got %v, want Fongistop hit", hits)
	}
}
