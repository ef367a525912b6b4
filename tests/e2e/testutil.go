//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/terrava/agrocore/internal/agridata"
)

// Package-level shared state, set by TestMain and used by all subtests.
var (
	testLogger    *zap.Logger
	testStore     *agridata.Store
	testRedisURL  string
	testLLMConfig *llmTestConfig
)

type llmTestConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("agrocore_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// skipIfNoLLM skips the test if LLM env vars are not configured.
func skipIfNoLLM(t *testing.T) {
	t.Helper()
	if testLLMConfig == nil {
		t.Skip("LLM provider not configured (set AGRO_TEST_PROVIDER_ENDPOINT, AGRO_TEST_PROVIDER_API_KEY, AGRO_TEST_PROVIDER_MODEL)")
	}
}

// loadLLMConfig reads the optional live-LLM configuration from env.
func loadLLMConfig() *llmTestConfig {
	endpoint := os.Getenv("AGRO_TEST_PROVIDER_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	return &llmTestConfig{
		Endpoint: endpoint,
		APIKey:   os.Getenv("AGRO_TEST_PROVIDER_API_KEY"),
		Model:    os.Getenv("AGRO_TEST_PROVIDER_MODEL"),
	}
}

// seedAgriData inserts a small EPHY product set and two parcelles so lookup
// queries have something to hit.
func seedAgriData(ctx context.Context, store *agridata.Store) error {
	products := []struct {
		name, amm, maxDose string
		znt                float64
		authorized         bool
	}{
		{"Prosaro", "2090061", "1 L/ha", 5, true},
		{"Karate Zeon", "9800336", "0.075 L/ha", 20, true},
		{"Glyphosate 360", "2190613", "3 L/ha", 5, false},
	}
	for _, p := range products {
		if err := store.InsertProduct(ctx, agridata.Product{
			Name:       p.name,
			AMMCode:    p.amm,
			Authorized: p.authorized,
			ZNTMeters:  p.znt,
			MaxDose:    p.maxDose,
		}); err != nil {
			return fmt.Errorf("seed product %s: %w", p.name, err)
		}
	}

	parcels := []agridata.Parcel{
		{FarmID: "farm-001", Name: "Les Grandes Terres", Crop: "blé tendre", AreaHa: 12.5, YieldTHa: 7.2},
		{FarmID: "farm-001", Name: "Le Clos", Crop: "colza", AreaHa: 8.3, YieldTHa: 3.4},
	}
	for _, p := range parcels {
		if err := store.InsertParcel(ctx, p); err != nil {
			return fmt.Errorf("seed parcel %s: %w", p.Name, err)
		}
	}
	return nil
}
