package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meepleai/meepleai/pkg/models"
)

// CacheStatsService persists per-question cache hit/miss counters. The
// counters only ever increase; the row is created on first hit or miss.
type CacheStatsService struct {
	pool *pgxpool.Pool
}

// NewCacheStatsService creates a new CacheStatsService.
func NewCacheStatsService(pool *pgxpool.Pool) *CacheStatsService {
	return &CacheStatsService{pool: pool}
}

// RecordHit increments the hit counter for (game, question hash).
func (s *CacheStatsService) RecordHit(ctx context.Context, gameID, questionHash string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_cache_stats (game_id, question_hash, hit_count, miss_count, created_at, last_hit_at)
		VALUES ($1, $2, 1, 0, $3, $3)
		ON CONFLICT (game_id, question_hash) DO UPDATE SET
			hit_count = query_cache_stats.hit_count + 1,
			last_hit_at = EXCLUDED.last_hit_at`,
		gameID, questionHash, now)
	if err != nil {
		return fmt.Errorf("failed to record cache hit: %w", err)
	}
	return nil
}

// RecordMiss increments the miss counter for (game, question hash).
func (s *CacheStatsService) RecordMiss(ctx context.Context, gameID, questionHash string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_cache_stats (game_id, question_hash, hit_count, miss_count, created_at)
		VALUES ($1, $2, 0, 1, $3)
		ON CONFLICT (game_id, question_hash) DO UPDATE SET
			miss_count = query_cache_stats.miss_count + 1`,
		gameID, questionHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record cache miss: %w", err)
	}
	return nil
}

// Aggregate sums hit/miss counters and returns the top question hashes by
// hit count. An empty gameID aggregates across all games.
func (s *CacheStatsService) Aggregate(ctx context.Context, gameID string, topN int) (int64, int64, []models.CacheStat, error) {
	where := ""
	args := []any{}
	if gameID != "" {
		where = ` WHERE game_id = $1`
		args = append(args, gameID)
	}

	var hits, misses int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(hit_count), 0), COALESCE(SUM(miss_count), 0) FROM query_cache_stats`+where,
		args...).Scan(&hits, &misses)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to aggregate cache stats: %w", err)
	}

	query := `SELECT game_id, question_hash, hit_count, miss_count, created_at, last_hit_at
		FROM query_cache_stats` + where +
		fmt.Sprintf(` ORDER BY hit_count DESC, question_hash LIMIT %d`, topN)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to list top cache stats: %w", err)
	}
	defer rows.Close()

	var top []models.CacheStat
	for rows.Next() {
		var c models.CacheStat
		if err := rows.Scan(&c.GameID, &c.QuestionHash, &c.HitCount, &c.MissCount,
			&c.CreatedAt, &c.LastHitAt); err != nil {
			return 0, 0, nil, fmt.Errorf("failed to scan cache stat: %w", err)
		}
		top = append(top, c)
	}
	return hits, misses, top, rows.Err()
}
