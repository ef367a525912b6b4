// Package conversation keeps a short per-conversation history in Redis so
// follow-up questions can be answered with context.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix  = "agrocore:conversation:"
	maxEntries = 50
	defaultTTL = 24 * time.Hour
)

// Record is one completed exchange in a conversation.
type Record struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	AgentType string    `json:"agent_type"`
	Degraded  bool      `json:"degraded,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store appends and reads conversation history.
type Store struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewStore connects to Redis and returns a ready store.
func NewStore(redisURL string, logger *zap.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb, logger: logger}, nil
}

// Append pushes a record onto the conversation's history, trimming it to a
// bounded length so long-running conversations stay cheap.
func (s *Store) Append(ctx context.Context, conversationID string, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	key := keyPrefix + conversationID
	pipe := s.rdb.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxEntries-1)
	pipe.Expire(ctx, key, defaultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append conversation %s: %w", conversationID, err)
	}
	return nil
}

// Recent returns up to n records, newest first. An unknown conversation
// yields an empty slice, not an error.
func (s *Store) Recent(ctx context.Context, conversationID string, n int) ([]Record, error) {
	if n <= 0 || n > maxEntries {
		n = maxEntries
	}
	raw, err := s.rdb.LRange(ctx, keyPrefix+conversationID, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read conversation %s: %w", conversationID, err)
	}
	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.logger.Warn("skipping corrupt conversation record",
				zap.String("conversation_id", conversationID), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close shuts down the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
