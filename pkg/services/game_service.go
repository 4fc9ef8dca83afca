package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meepleai/meepleai/pkg/models"
)

// GameService manages the games table.
type GameService struct {
	pool *pgxpool.Pool
}

// NewGameService creates a new GameService.
func NewGameService(pool *pgxpool.Pool) *GameService {
	return &GameService{pool: pool}
}

// CreateGame registers a game under a stable opaque identifier.
func (s *GameService) CreateGame(ctx context.Context, id, name string) (*models.Game, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, NewValidationError("id", "required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, NewValidationError("name", "required")
	}

	game := &models.Game{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO games (game_id, name, created_at) VALUES ($1, $2, $3)`,
		game.ID, game.Name, game.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return game, nil
}

// GetGame fetches one game by id.
func (s *GameService) GetGame(ctx context.Context, id string) (*models.Game, error) {
	var g models.Game
	err := s.pool.QueryRow(ctx,
		`SELECT game_id, name, created_at FROM games WHERE game_id = $1`, id).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return &g, nil
}

// ListGames returns all games ordered by name.
func (s *GameService) ListGames(ctx context.Context) ([]models.Game, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT game_id, name, created_at FROM games ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}
