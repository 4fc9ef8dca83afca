package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meepleai/meepleai/pkg/models"
)

// CreateDocumentRequest carries the extraction collaborator's output.
type CreateDocumentRequest struct {
	GameID        string
	FileName      string
	FileSizeBytes int64
	UploadedBy    string
	ExtractedText string
	PageCount     int
}

// DocumentService manages rulebook documents and their extracted text.
type DocumentService struct {
	pool *pgxpool.Pool
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(pool *pgxpool.Pool) *DocumentService {
	return &DocumentService{pool: pool}
}

// CreateDocument stores an extracted document. The extraction collaborator
// hands over text, so the document lands directly in completed state; an
// empty text lands it in failed state with an extraction error.
func (s *DocumentService) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*models.Document, error) {
	if strings.TrimSpace(req.GameID) == "" {
		return nil, NewValidationError("game_id", "required")
	}
	if strings.TrimSpace(req.FileName) == "" {
		return nil, NewValidationError("file_name", "required")
	}

	doc := &models.Document{
		ID:               uuid.New().String(),
		GameID:           req.GameID,
		FileName:         req.FileName,
		FileSizeBytes:    req.FileSizeBytes,
		UploadedBy:       req.UploadedBy,
		UploadedAt:       time.Now().UTC(),
		ExtractedText:    req.ExtractedText,
		PageCount:        req.PageCount,
		CharacterCount:   len(req.ExtractedText),
		ProcessingStatus: models.DocStatusCompleted,
	}
	if strings.TrimSpace(req.ExtractedText) == "" {
		doc.ProcessingStatus = models.DocStatusFailed
		doc.ExtractionError = "no text extracted from document"
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents
			(document_id, game_id, file_name, file_size_bytes, uploaded_by, uploaded_at,
			 processing_status, extracted_text, page_count, character_count, extraction_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))`,
		doc.ID, doc.GameID, doc.FileName, doc.FileSizeBytes, doc.UploadedBy, doc.UploadedAt,
		doc.ProcessingStatus, doc.ExtractedText, doc.PageCount, doc.CharacterCount, doc.ExtractionError)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

// GetDocument fetches one document including its extracted text.
func (s *DocumentService) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var d models.Document
	var extractionError *string
	err := s.pool.QueryRow(ctx, `
		SELECT document_id, game_id, file_name, file_size_bytes, uploaded_by, uploaded_at,
		       processing_status, extracted_text, page_count, character_count, extraction_error
		FROM documents WHERE document_id = $1`, id).
		Scan(&d.ID, &d.GameID, &d.FileName, &d.FileSizeBytes, &d.UploadedBy, &d.UploadedAt,
			&d.ProcessingStatus, &d.ExtractedText, &d.PageCount, &d.CharacterCount, &extractionError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if extractionError != nil {
		d.ExtractionError = *extractionError
	}
	return &d, nil
}

// ListDocuments returns a game's documents, newest first, without the
// extracted text payload.
func (s *DocumentService) ListDocuments(ctx context.Context, gameID string) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document_id, game_id, file_name, file_size_bytes, uploaded_by, uploaded_at,
		       processing_status, page_count, character_count, extraction_error
		FROM documents WHERE game_id = $1 ORDER BY uploaded_at DESC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		var extractionError *string
		if err := rows.Scan(&d.ID, &d.GameID, &d.FileName, &d.FileSizeBytes, &d.UploadedBy,
			&d.UploadedAt, &d.ProcessingStatus, &d.PageCount, &d.CharacterCount, &extractionError); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if extractionError != nil {
			d.ExtractionError = *extractionError
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document row; vector points are cleaned up by
// the caller via the vector store.
func (s *DocumentService) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE document_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
