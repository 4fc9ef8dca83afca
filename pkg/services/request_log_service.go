package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meepleai/meepleai/pkg/models"
)

// RequestLogService appends one row per AI operation, cached or not.
type RequestLogService struct {
	pool *pgxpool.Pool
}

// NewRequestLogService creates a new RequestLogService.
func NewRequestLogService(pool *pgxpool.Pool) *RequestLogService {
	return &RequestLogService{pool: pool}
}

// Append writes one request log row. The id and timestamp are assigned
// here.
func (s *RequestLogService) Append(ctx context.Context, log models.AIRequestLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ai_request_logs
			(log_id, endpoint, game_id, user_id, query, latency_ms,
			 prompt_tokens, completion_tokens, total_tokens, confidence,
			 from_cache, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14)`,
		log.ID, log.Endpoint, log.GameID, log.UserID, log.Query, log.LatencyMs,
		log.PromptTokens, log.CompletionTokens, log.TotalTokens, log.Confidence,
		log.FromCache, log.Success, log.ErrorMessage, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append request log: %w", err)
	}
	return nil
}

// Recent returns the most recent rows for a game, newest first.
func (s *RequestLogService) Recent(ctx context.Context, gameID string, limit int) ([]models.AIRequestLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT log_id, endpoint, game_id, user_id, query, latency_ms,
		       prompt_tokens, completion_tokens, total_tokens, confidence,
		       from_cache, success, COALESCE(error_message, ''), created_at
		FROM ai_request_logs
		WHERE game_id = $1 ORDER BY created_at DESC LIMIT $2`, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list request logs: %w", err)
	}
	defer rows.Close()

	var out []models.AIRequestLog
	for rows.Next() {
		var l models.AIRequestLog
		if err := rows.Scan(&l.ID, &l.Endpoint, &l.GameID, &l.UserID, &l.Query, &l.LatencyMs,
			&l.PromptTokens, &l.CompletionTokens, &l.TotalTokens, &l.Confidence,
			&l.FromCache, &l.Success, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
