// Package cache memoizes AI endpoint responses in Redis, keyed by stable
// fingerprints, with tag sets for batch invalidation and hit/miss
// statistics persisted through a pluggable recorder.
//
// The cache is strictly best-effort: backend failures never surface to
// callers. A failed read is a miss; a failed write is logged and dropped.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds the lifetime of cached responses.
const DefaultTTL = 24 * time.Hour

// StatsRecorder persists hit/miss counters. Recording failures are
// swallowed by the cache; the recorder may be nil.
type StatsRecorder interface {
	RecordHit(ctx context.Context, gameID, questionHash string) error
	RecordMiss(ctx context.Context, gameID, questionHash string) error
}

// KeyScanner reports on the backing keyspace for stats reporting.
type KeyScanner interface {
	ScanCount(ctx context.Context, patterns []string) (keys int64, bytes int64)
}

// ResponseCache is the Redis-backed response cache.
type ResponseCache struct {
	rdb       *redis.Client
	stats     StatsRecorder
	ttl       time.Duration
	opTimeout time.Duration
}

// New creates a ResponseCache. stats may be nil to disable statistics.
func New(rdb *redis.Client, stats StatsRecorder, defaultTTL, opTimeout time.Duration) *ResponseCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if opTimeout <= 0 {
		opTimeout = time.Second
	}
	return &ResponseCache{rdb: rdb, stats: stats, ttl: defaultTTL, opTimeout: opTimeout}
}

// DefaultTTL returns the configured response TTL.
func (c *ResponseCache) DefaultTTL() time.Duration { return c.ttl }

// Get reads a cached value. It returns ok=false on a miss and on any
// backend or decoding error. Hit/miss statistics are recorded as a side
// effect.
func Get[T any](ctx context.Context, c *ResponseCache, key string) (T, bool) {
	var zero T

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	raw, err := c.rdb.Get(opCtx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("Cache read failed, treating as miss", "key", key, "error", err)
		}
		c.recordMiss(ctx, key)
		return zero, false
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		slog.Warn("Cache entry undecodable, treating as miss", "key", key, "error", err)
		c.recordMiss(ctx, key)
		return zero, false
	}

	c.recordHit(ctx, key)
	return value, true
}

// Set writes a value best-effort and registers the key under each tag set.
// A non-positive ttl uses the configured default.
func Set[T any](ctx context.Context, c *ResponseCache, key string, value T, ttl time.Duration, tags ...string) {
	raw, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Cache value not serializable, skipping write", "key", key, "error", err)
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.rdb.Set(opCtx, key, raw, ttl).Err(); err != nil {
		slog.Warn("Cache write failed", "key", key, "error", err)
		return
	}
	for _, tag := range tags {
		if err := c.rdb.SAdd(opCtx, "tag:"+tag, key).Err(); err != nil {
			slog.Warn("Cache tag registration failed", "key", key, "tag", tag, "error", err)
		}
	}
}

// InvalidateGame deletes every cached response for the game across all
// three endpoint key shapes. Returns the number of keys removed
// (best-effort).
func (c *ResponseCache) InvalidateGame(ctx context.Context, gameID string) int {
	return c.deletePatterns(ctx, endpointPatterns(gameID, ""))
}

// InvalidateEndpoint deletes the game's cached responses for one endpoint.
func (c *ResponseCache) InvalidateEndpoint(ctx context.Context, gameID, endpoint string) int {
	return c.deletePatterns(ctx, endpointPatterns(gameID, endpoint))
}

// InvalidateByTag deletes every key listed in the tag set, each key's
// metadata companion, and finally the tag set itself.
func (c *ResponseCache) InvalidateByTag(ctx context.Context, tag string) int {
	setKey := "tag:" + tag
	members, err := c.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		slog.Warn("Tag set read failed", "tag", tag, "error", err)
		return 0
	}

	removed := 0
	for _, key := range members {
		n, err := c.rdb.Del(ctx, key, key+":meta").Result()
		if err != nil {
			slog.Warn("Tag invalidation delete failed", "key", key, "error", err)
			continue
		}
		removed += int(n)
	}
	if err := c.rdb.Del(ctx, setKey).Err(); err != nil {
		slog.Warn("Tag set delete failed", "tag", tag, "error", err)
	}
	return removed
}

// deletePatterns runs a cursor-based SCAN + DEL loop per pattern. Cost is
// O(matching keys); callers only wait for the count.
func (c *ResponseCache) deletePatterns(ctx context.Context, patterns []string) int {
	removed := 0
	for _, pattern := range patterns {
		iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		batch := make([]string, 0, 100)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == 100 {
				removed += c.deleteKeys(ctx, batch)
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			slog.Warn("Cache scan failed", "pattern", pattern, "error", err)
		}
		if len(batch) > 0 {
			removed += c.deleteKeys(ctx, batch)
		}
	}
	return removed
}

func (c *ResponseCache) deleteKeys(ctx context.Context, keys []string) int {
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		slog.Warn("Cache delete failed", "keys", len(keys), "error", err)
		return 0
	}
	return int(n)
}

// ScanCount walks the given patterns and reports key count and total
// memory usage, both best-effort.
func (c *ResponseCache) ScanCount(ctx context.Context, patterns []string) (int64, int64) {
	var keys, bytes int64
	for _, pattern := range patterns {
		iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys++
			if size, err := c.rdb.MemoryUsage(ctx, iter.Val()).Result(); err == nil {
				bytes += size
			}
		}
		if err := iter.Err(); err != nil {
			slog.Warn("Cache scan failed", "pattern", pattern, "error", err)
		}
	}
	return keys, bytes
}

// GamePatterns exposes the per-game key patterns for stats reporting.
func GamePatterns(gameID string) []string {
	if gameID == "" {
		return []string{prefixQA + "*", prefixExplain + "*", prefixSetup + "*"}
	}
	return endpointPatterns(gameID, "")
}

func (c *ResponseCache) recordHit(ctx context.Context, key string) {
	if c.stats == nil {
		return
	}
	gameID, hash, ok := statsIdentity(key)
	if !ok {
		return
	}
	if err := c.stats.RecordHit(ctx, gameID, hash); err != nil {
		slog.Warn("Cache hit stat write failed", "key", key, "error", err)
	}
}

func (c *ResponseCache) recordMiss(ctx context.Context, key string) {
	if c.stats == nil {
		return
	}
	gameID, hash, ok := statsIdentity(key)
	if !ok {
		return
	}
	if err := c.stats.RecordMiss(ctx, gameID, hash); err != nil {
		slog.Warn("Cache miss stat write failed", "key", key, "error", err)
	}
}
