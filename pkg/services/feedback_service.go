package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meepleai/meepleai/pkg/models"
)

// FeedbackService stores user verdicts on answered messages, one row per
// (message, endpoint, user).
type FeedbackService struct {
	pool *pgxpool.Pool
}

// NewFeedbackService creates a new FeedbackService.
func NewFeedbackService(pool *pgxpool.Pool) *FeedbackService {
	return &FeedbackService{pool: pool}
}

// Record upserts the caller's feedback. An empty outcome retracts any
// previously recorded row.
func (s *FeedbackService) Record(ctx context.Context, fb models.AgentFeedback) error {
	if strings.TrimSpace(fb.MessageID) == "" {
		return NewValidationError("message_id", "required")
	}
	if strings.TrimSpace(fb.Endpoint) == "" {
		return NewValidationError("endpoint", "required")
	}
	if strings.TrimSpace(fb.UserID) == "" {
		return NewValidationError("user_id", "required")
	}

	if fb.Outcome == "" {
		_, err := s.pool.Exec(ctx, `
			DELETE FROM agent_feedback
			WHERE message_id = $1 AND endpoint = $2 AND user_id = $3`,
			fb.MessageID, fb.Endpoint, fb.UserID)
		if err != nil {
			return fmt.Errorf("failed to retract feedback: %w", err)
		}
		return nil
	}

	if fb.Outcome != models.FeedbackHelpful && fb.Outcome != models.FeedbackNotHelpful {
		return NewValidationError("outcome", fmt.Sprintf("unknown outcome %q", fb.Outcome))
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_feedback (feedback_id, message_id, endpoint, user_id, game_id, outcome, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id, endpoint, user_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			game_id = EXCLUDED.game_id,
			updated_at = EXCLUDED.updated_at`,
		uuid.New().String(), fb.MessageID, fb.Endpoint, fb.UserID, fb.GameID, fb.Outcome,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	return nil
}

// Stats returns totals plus per-endpoint and per-outcome histograms,
// optionally filtered by game.
func (s *FeedbackService) Stats(ctx context.Context, gameID string) (*models.FeedbackStats, error) {
	where := ""
	args := []any{}
	if gameID != "" {
		where = ` WHERE game_id = $1`
		args = append(args, gameID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT endpoint, outcome, COUNT(*) FROM agent_feedback`+where+
			` GROUP BY endpoint, outcome`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	defer rows.Close()

	stats := &models.FeedbackStats{
		ByEndpoint: map[string]map[string]int64{},
		ByOutcome:  map[string]int64{},
	}
	for rows.Next() {
		var endpoint, outcome string
		var count int64
		if err := rows.Scan(&endpoint, &outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan feedback stats: %w", err)
		}
		if stats.ByEndpoint[endpoint] == nil {
			stats.ByEndpoint[endpoint] = map[string]int64{}
		}
		stats.ByEndpoint[endpoint][outcome] += count
		stats.ByOutcome[outcome] += count
		stats.Total += count
	}
	return stats, rows.Err()
}
