// Package cache memoizes routing decisions in Redis. The cache is a
// performance optimization, never a correctness boundary: every failure is
// logged and treated as a miss.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/terrava/agrocore/internal/route"
	"go.uber.org/zap"
)

const keyPrefix = "agrocore:route:"

// RoutingCache stores routing decisions keyed by normalized query+context.
type RoutingCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to Redis and returns a ready cache.
func New(redisURL string, ttl time.Duration, logger *zap.Logger) (*RoutingCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &RoutingCache{rdb: rdb, ttl: ttl, logger: logger}, nil
}

// Key normalizes a (query, context) pair into a cache key. Only
// routing-relevant context keys participate.
func Key(query string, qctx map[string]string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(query)))

	keys := make([]string, 0, len(qctx))
	for k := range qctx {
		switch k {
		case "farm_id", "region", "crop", "agent_preference":
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strings.ToLower(qctx[k]))
	}
	return keyPrefix + b.String()
}

// Get returns the cached decision for a key, or false on miss or any error.
func (c *RoutingCache) Get(ctx context.Context, key string) (*route.Decision, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("routing cache get failed", zap.Error(err))
		}
		return nil, false
	}
	var d route.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		c.logger.Warn("routing cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return &d, true
}

// Put stores a decision. Failures are logged, never returned; a lost write
// only costs a future cache miss.
func (c *RoutingCache) Put(ctx context.Context, key string, d *route.Decision) {
	data, err := json.Marshal(d)
	if err != nil {
		c.logger.Warn("routing cache marshal failed", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("routing cache put failed", zap.Error(err))
	}
}

// Close shuts down the Redis connection.
func (c *RoutingCache) Close() error {
	return c.rdb.Close()
}
