// Package metrics counts routing and consensus outcomes. Counters live in
// Redis so several instances share one view; the nop sink keeps callers
// unconditional when metrics are disabled.
package metrics

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/terrava/agrocore/internal/route"
	"go.uber.org/zap"
)

const keyPrefix = "agrocore:metrics:"

// Sink receives routing and consensus outcomes.
type Sink interface {
	RoutingDecision(ctx context.Context, dest route.Destination, cacheHit bool)
	QueryCompleted(ctx context.Context, agentType string, degraded bool)
	ConsensusRun(ctx context.Context, reached bool, experts int)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RoutingDecision(context.Context, route.Destination, bool) {}
func (NopSink) QueryCompleted(context.Context, string, bool)             {}
func (NopSink) ConsensusRun(context.Context, bool, int)                  {}

// RedisSink increments shared counters. All writes are best effort.
type RedisSink struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisSink connects to Redis and returns a ready sink.
func NewRedisSink(redisURL string, logger *zap.Logger) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSink{rdb: rdb, logger: logger}, nil
}

func (s *RedisSink) incr(ctx context.Context, name string) {
	if err := s.rdb.Incr(ctx, keyPrefix+name).Err(); err != nil {
		s.logger.Warn("metrics increment failed", zap.String("counter", name), zap.Error(err))
	}
}

func (s *RedisSink) RoutingDecision(ctx context.Context, dest route.Destination, cacheHit bool) {
	s.incr(ctx, "route:"+string(dest))
	if cacheHit {
		s.incr(ctx, "route:cache_hit")
	} else {
		s.incr(ctx, "route:cache_miss")
	}
}

func (s *RedisSink) QueryCompleted(ctx context.Context, agentType string, degraded bool) {
	s.incr(ctx, "query:completed:"+agentType)
	if degraded {
		s.incr(ctx, "query:degraded")
	}
}

func (s *RedisSink) ConsensusRun(ctx context.Context, reached bool, experts int) {
	if reached {
		s.incr(ctx, "consensus:reached")
	} else {
		s.incr(ctx, "consensus:failed")
	}
	s.incr(ctx, fmt.Sprintf("consensus:panel_size:%d", experts))
}

// Snapshot reads all counters under the metrics prefix. Used by the stats
// endpoint.
func (s *RedisSink) Snapshot(ctx context.Context) (map[string]int64, error) {
	keys, err := s.rdb.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list metric keys: %w", err)
	}
	out := make(map[string]int64, len(keys))
	for _, key := range keys {
		val, err := s.rdb.Get(ctx, key).Int64()
		if err != nil {
			continue
		}
		out[key[len(keyPrefix):]] = val
	}
	return out, nil
}

// Close shuts down the Redis connection.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
