package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// processedKey is the set holding every source listing key the pipeline has
// already handled.
const processedKey = "processed:markets"

// ProcessedCache implements domain.ProcessedSet using a Redis set. It fronts
// the Postgres dedup ledger; a miss here is re-checked against the store, so
// the set may be flushed without losing correctness.
type ProcessedCache struct {
	rdb *redis.Client
}

// NewProcessedCache creates a ProcessedCache backed by the given Client.
func NewProcessedCache(c *Client) *ProcessedCache {
	return &ProcessedCache{rdb: c.Underlying()}
}

// Add records keys as processed.
func (pc *ProcessedCache) Add(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	if err := pc.rdb.SAdd(ctx, processedKey, members...).Err(); err != nil {
		return fmt.Errorf("redis: add processed keys: %w", err)
	}
	return nil
}

// Contains reports whether a key is in the processed set.
func (pc *ProcessedCache) Contains(ctx context.Context, key string) (bool, error) {
	ok, err := pc.rdb.SIsMember(ctx, processedKey, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check processed %s: %w", key, err)
	}
	return ok, nil
}

// ContainsBatch reports membership for each input key in one round trip.
func (pc *ProcessedCache) ContainsBatch(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}

	results, err := pc.rdb.SMIsMember(ctx, processedKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: check processed batch: %w", err)
	}
	for i, k := range keys {
		out[k] = i < len(results) && results[i]
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.ProcessedSet = (*ProcessedCache)(nil)
