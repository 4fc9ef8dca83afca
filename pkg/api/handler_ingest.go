package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai/pkg/cache"
	"github.com/meepleai/meepleai/pkg/models"
	"github.com/meepleai/meepleai/pkg/services"
)

// ingestPDFHandler handles POST /api/v1/ingest/pdf. It stores the
// extracted document and enqueues background indexing.
func (s *Server) ingestPDFHandler(c *gin.Context) {
	var req IngestPDFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "VALIDATION")
		return
	}

	if _, err := s.games.GetGame(c.Request.Context(), req.GameID); err != nil {
		respondError(c, err)
		return
	}

	identity := callerIdentity(c)
	doc, err := s.documents.CreateDocument(c.Request.Context(), services.CreateDocumentRequest{
		GameID:        req.GameID,
		FileName:      req.FileName,
		FileSizeBytes: req.FileSizeBytes,
		UploadedBy:    identity.UserID,
		ExtractedText: req.ExtractedText,
		PageCount:     req.PageCount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if doc.ProcessingStatus == models.DocStatusCompleted {
		if err := s.pool.Enqueue(doc.ID); err != nil {
			// The document is stored; indexing can be re-run explicitly.
			slog.Warn("Background indexing not enqueued",
				"document_id", doc.ID, "error", err, "correlation_id", correlationID(c))
		}
	}

	c.JSON(http.StatusOK, IngestResponse{DocumentID: doc.ID})
}

// indexPDFHandler handles POST /api/v1/ingest/pdf/:pdfId/index. It runs
// (re-)indexing synchronously and reports the result.
func (s *Server) indexPDFHandler(c *gin.Context) {
	documentID := c.Param("pdfId")

	result, err := s.indexer.IndexDocument(c.Request.Context(), documentID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Indexing invalidates the game's cached responses: the underlying
	// document set changed. Pattern deletion first, then the tag set.
	if doc, derr := s.documents.GetDocument(c.Request.Context(), documentID); derr == nil {
		s.cache.InvalidateGame(c.Request.Context(), doc.GameID)
		s.cache.InvalidateByTag(c.Request.Context(), cache.GameTag(doc.GameID))
	}

	c.JSON(http.StatusOK, result)
}

// deleteDocumentHandler handles DELETE /api/v1/ingest/documents/:documentId.
// The vector point set is owned by the document, so it is removed first;
// the relational row (and its vector-document record, via cascade) goes
// second, and the game's cached responses are invalidated last.
func (s *Server) deleteDocumentHandler(c *gin.Context) {
	documentID := c.Param("documentId")

	doc, err := s.documents.GetDocument(c.Request.Context(), documentID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.vectors.DeleteDocument(c.Request.Context(), documentID); err != nil {
		respondError(c, err)
		return
	}
	if err := s.documents.DeleteDocument(c.Request.Context(), documentID); err != nil {
		respondError(c, err)
		return
	}

	s.cache.InvalidateGame(c.Request.Context(), doc.GameID)
	s.cache.InvalidateByTag(c.Request.Context(), cache.GameTag(doc.GameID))

	c.JSON(http.StatusOK, gin.H{"deleted": documentID})
}

// listDocumentsHandler handles GET /api/v1/ingest/documents?gameId=.
func (s *Server) listDocumentsHandler(c *gin.Context) {
	gameID := c.Query("gameId")
	if gameID == "" {
		abortError(c, http.StatusBadRequest, "gameId is required", "VALIDATION")
		return
	}

	docs, err := s.documents.ListDocuments(c.Request.Context(), gameID)
	if err != nil {
		respondError(c, err)
		return
	}

	records, err := s.vectorDocs.ListByGame(c.Request.Context(), gameID)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		respondError(c, err)
		return
	}
	byDocument := make(map[string]models.VectorDocument, len(records))
	for _, r := range records {
		byDocument[r.DocumentID] = r
	}

	type documentStatus struct {
		models.Document
		Indexing *models.VectorDocument `json:"indexing,omitempty"`
	}
	out := make([]documentStatus, len(docs))
	for i, d := range docs {
		out[i] = documentStatus{Document: d}
		if r, ok := byDocument[d.ID]; ok {
			record := r
			out[i].Indexing = &record
		}
	}

	c.JSON(http.StatusOK, gin.H{"documents": out})
}
