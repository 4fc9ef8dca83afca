package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meepleai/meepleai/pkg/models"
)

// VectorDocumentService tracks per-document indexing state. A document
// has at most one record; re-indexing reuses it.
type VectorDocumentService struct {
	pool *pgxpool.Pool
}

// NewVectorDocumentService creates a new VectorDocumentService.
func NewVectorDocumentService(pool *pgxpool.Pool) *VectorDocumentService {
	return &VectorDocumentService{pool: pool}
}

const vectorDocColumns = `vector_document_id, game_id, document_id, chunk_count, total_characters,
	embedding_model, embedding_dimensions, indexing_status, indexing_error,
	indexed_at, created_at, updated_at`

func scanVectorDoc(row pgx.Row) (*models.VectorDocument, error) {
	var v models.VectorDocument
	var indexingError *string
	err := row.Scan(&v.ID, &v.GameID, &v.DocumentID, &v.ChunkCount, &v.TotalCharacters,
		&v.EmbeddingModel, &v.EmbeddingDimensions, &v.IndexingStatus, &indexingError,
		&v.IndexedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if indexingError != nil {
		v.IndexingError = *indexingError
	}
	return &v, nil
}

// GetByDocument fetches the record for a document.
func (s *VectorDocumentService) GetByDocument(ctx context.Context, documentID string) (*models.VectorDocument, error) {
	v, err := scanVectorDoc(s.pool.QueryRow(ctx,
		`SELECT `+vectorDocColumns+` FROM vector_documents WHERE document_id = $1`, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vector document: %w", err)
	}
	return v, nil
}

// BeginIndexing creates a processing-state record for the document, or
// resets an existing one to processing while preserving its id.
func (s *VectorDocumentService) BeginIndexing(ctx context.Context, gameID, documentID, model string, dimensions int) (*models.VectorDocument, error) {
	now := time.Now().UTC()
	v, err := scanVectorDoc(s.pool.QueryRow(ctx, `
		INSERT INTO vector_documents
			(vector_document_id, game_id, document_id, embedding_model, embedding_dimensions,
			 indexing_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'processing', $6, $6)
		ON CONFLICT (document_id) DO UPDATE SET
			indexing_status = 'processing',
			indexing_error = NULL,
			embedding_model = EXCLUDED.embedding_model,
			embedding_dimensions = EXCLUDED.embedding_dimensions,
			updated_at = EXCLUDED.updated_at
		RETURNING `+vectorDocColumns,
		uuid.New().String(), gameID, documentID, model, dimensions, now))
	if err != nil {
		return nil, fmt.Errorf("failed to begin indexing: %w", err)
	}
	return v, nil
}

// CompleteIndexing marks the record completed and fills the run counters.
func (s *VectorDocumentService) CompleteIndexing(ctx context.Context, id string, chunkCount, totalCharacters int) (*models.VectorDocument, error) {
	now := time.Now().UTC()
	v, err := scanVectorDoc(s.pool.QueryRow(ctx, `
		UPDATE vector_documents SET
			indexing_status = 'completed',
			indexing_error = NULL,
			chunk_count = $2,
			total_characters = $3,
			indexed_at = $4,
			updated_at = $4
		WHERE vector_document_id = $1
		RETURNING `+vectorDocColumns,
		id, chunkCount, totalCharacters, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to complete indexing: %w", err)
	}
	return v, nil
}

// FailIndexing marks the record failed with a human-readable reason.
func (s *VectorDocumentService) FailIndexing(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vector_documents SET
			indexing_status = 'failed',
			indexing_error = $2,
			updated_at = $3
		WHERE vector_document_id = $1`,
		id, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark indexing failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByGame returns all records for a game.
func (s *VectorDocumentService) ListByGame(ctx context.Context, gameID string) ([]models.VectorDocument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+vectorDocColumns+` FROM vector_documents WHERE game_id = $1 ORDER BY created_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vector documents: %w", err)
	}
	defer rows.Close()

	var out []models.VectorDocument
	for rows.Next() {
		v, err := scanVectorDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vector document: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
