package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai/pkg/agents"
	"github.com/meepleai/meepleai/pkg/embeddings"
	"github.com/meepleai/meepleai/pkg/indexer"
	"github.com/meepleai/meepleai/pkg/llm"
	"github.com/meepleai/meepleai/pkg/services"
)

// respondError maps service and engine errors onto HTTP status codes and
// the shared error envelope.
func respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		slog.Error("Unexpected error", "error", err, "correlation_id", correlationID(c))
	}
	c.JSON(status, ErrorResponse{
		Error:         err.Error(),
		Code:          code,
		CorrelationID: correlationID(c),
	})
}

func classifyError(err error) (int, string) {
	var validErr *services.ValidationError
	switch {
	// Duplicate names are a validation failure, same as empty inputs and
	// body-shape rejections.
	case errors.As(err, &validErr),
		errors.Is(err, agents.ErrEmptyQuery),
		errors.Is(err, agents.ErrEmptyGameID),
		errors.Is(err, services.ErrAlreadyExists):
		return http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, indexer.ErrTextExtractionRequired):
		return http.StatusBadRequest, "TEXT_EXTRACTION_REQUIRED"
	case errors.Is(err, indexer.ErrPdfNotFound):
		return http.StatusNotFound, "PDF_NOT_FOUND"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, agents.ErrNoResults):
		return http.StatusNotFound, agents.CodeNoResults
	case errors.Is(err, agents.ErrEmbeddingFailed),
		errors.Is(err, agents.ErrLlmFailed),
		errors.Is(err, indexer.ErrEmbeddingFailed),
		errors.Is(err, indexer.ErrVectorIndexingFailed),
		embeddings.IsTransient(err),
		llm.IsTransient(err):
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, indexer.ErrChunkingFailed):
		return http.StatusUnprocessableEntity, "CHUNKING_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
