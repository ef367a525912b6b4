package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/terrava/agrocore/internal/agridata"
	"github.com/terrava/agrocore/internal/api"
	"github.com/terrava/agrocore/internal/cache"
	"github.com/terrava/agrocore/internal/classifier"
	"github.com/terrava/agrocore/internal/config"
	"github.com/terrava/agrocore/internal/consensus"
	"github.com/terrava/agrocore/internal/conversation"
	"github.com/terrava/agrocore/internal/decisiontree"
	"github.com/terrava/agrocore/internal/dispatcher"
	"github.com/terrava/agrocore/internal/embedding"
	"github.com/terrava/agrocore/internal/metrics"
	"github.com/terrava/agrocore/internal/pipeline"
	"github.com/terrava/agrocore/internal/provider"
	"github.com/terrava/agrocore/internal/vectorstore"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting agrocore...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/agrocore.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize provider router
	providers := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Extra: pc.Extra,
		}
		if len(pc.Models) > 0 {
			provCfg.Model = pc.Models[0]
		}
		switch pc.Type {
		case "openai":
			providers.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			providers.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	// With no providers configured, pipelines run in structured-summary
	// fallback mode instead of failing every synthesis call.
	var completer provider.Completer
	if len(cfg.Providers) > 0 {
		completer = providers
	}

	// Embedding provider: API-backed when configured, local hashing otherwise
	var embedder embedding.Provider
	embCfg := embedding.Config{
		Provider: cfg.Embedding.Provider, Endpoint: cfg.Embedding.Endpoint,
		Model: cfg.Embedding.Model, APIKey: cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	}
	if embCfg.Provider == "api" && embCfg.Endpoint != "" {
		embedder = embedding.NewAPIProvider(embCfg)
	} else {
		embedder = embedding.NewLocalProvider(embCfg)
		logger.Info("using local embedding provider")
	}

	// Qdrant index for the routing example corpus
	var index classifier.Index
	if cfg.Database.Qdrant.Host != "" {
		qc, qErr := vectorstore.NewClient(vectorstore.Config{
			Host: cfg.Database.Qdrant.Host, Port: cfg.Database.Qdrant.Port,
		})
		if qErr != nil {
			logger.Warn("Qdrant unavailable, classifier keeps corpus in memory", zap.Error(qErr))
		} else {
			index = qc
			defer qc.Close()
		}
	}

	// Classifier
	weights := classifier.DefaultWeights()
	if cfg.Classifier.KeywordWeight > 0 {
		weights = classifier.Weights{
			Keyword:   cfg.Classifier.KeywordWeight,
			Pattern:   cfg.Classifier.PatternWeight,
			Embedding: cfg.Classifier.EmbeddingWeight,
			Model:     cfg.Classifier.ModelWeight,
		}
	}
	cls, err := classifier.New(classifier.NewRegistry(), embedder, completer, classifier.Options{
		Weights:     weights,
		CacheSize:   cfg.Classifier.CacheSize,
		CallTimeout: cfg.Classifier.CallTimeout(),
		Index:       index,
		Collection:  cfg.Classifier.Collection,
	}, logger)
	if err != nil {
		logger.Fatal("classifier init failed", zap.Error(err))
	}
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := cls.Warm(warmCtx); err != nil {
		logger.Warn("classifier warm-up incomplete", zap.Error(err))
	}
	warmCancel()

	// Domain data services: stubs back any store that fails to come up
	var weather agridata.WeatherService = &agridata.StubWeather{}
	if cfg.Weather.Endpoint != "" {
		weather = agridata.NewWeatherClient(cfg.Weather.Endpoint, 10*time.Second, logger)
	}

	var regulatory agridata.RegulatoryService = &agridata.StubRegulatory{}
	var farm agridata.FarmService = &agridata.StubFarm{}
	var store *agridata.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := agridata.NewStore(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running on stub agronomic data", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store = ps
			regulatory = ps
			farm = ps
		}
	}

	// Pipelines and routers
	callTimeout := cfg.Classifier.CallTimeout()
	pipe := pipeline.New(weather, regulatory, farm, completer, callTimeout, logger)
	cons := consensus.New(completer, callTimeout, logger)
	tree := decisiontree.New(logger)

	disp := dispatcher.New(cls, tree, pipe, cons, logger)

	// Redis-backed cache, conversation memory and metrics are all optional
	var memory *conversation.Store
	var stats *metrics.RedisSink
	if cfg.Database.Redis.URL != "" {
		if rc, cErr := cache.New(cfg.Database.Redis.URL, cfg.Classifier.CacheTTL(), logger); cErr != nil {
			logger.Warn("Redis unavailable, routing cache disabled", zap.Error(cErr))
		} else {
			disp.WithCache(rc)
			defer rc.Close()
		}
		if ms, mErr := conversation.NewStore(cfg.Database.Redis.URL, logger); mErr != nil {
			logger.Warn("Redis unavailable, conversation memory disabled", zap.Error(mErr))
		} else {
			memory = ms
			disp.WithMemory(ms)
			defer ms.Close()
		}
		if sink, sErr := metrics.NewRedisSink(cfg.Database.Redis.URL, logger); sErr != nil {
			logger.Warn("Redis unavailable, metrics disabled", zap.Error(sErr))
		} else {
			stats = sink
			disp.WithMetrics(sink)
			defer sink.Close()
		}
	}

	// Build HTTP handler
	handler := api.NewHandler(disp, memory, logger)
	if stats != nil {
		handler.WithStats(stats)
	}

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("agrocore listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down agrocore...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if store != nil {
		store.Close()
	}
}
