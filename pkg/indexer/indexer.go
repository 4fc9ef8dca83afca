// Package indexer turns extracted documents into indexed vector sets:
// chunk, batch-embed, upsert, with status tracking in the relational
// store. Indexing one document is serialized; distinct documents proceed
// in parallel under the worker pool.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/meepleai/meepleai/pkg/chunker"
	"github.com/meepleai/meepleai/pkg/models"
	"github.com/meepleai/meepleai/pkg/services"
	"github.com/meepleai/meepleai/pkg/vectorstore"
)

// Failure kinds surfaced by IndexDocument. All of them also persist a
// failed status with a human-readable reason on the vector-document
// record (when one exists).
var (
	ErrPdfNotFound            = errors.New("document not found")
	ErrTextExtractionRequired = errors.New("document has no extracted text")
	ErrChunkingFailed         = errors.New("chunking produced no chunks")
	ErrEmbeddingFailed        = errors.New("embedding failed")
	ErrVectorIndexingFailed   = errors.New("vector store indexing failed")
)

// DocumentStore loads documents to index.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
}

// RecordStore tracks per-document indexing state.
type RecordStore interface {
	GetByDocument(ctx context.Context, documentID string) (*models.VectorDocument, error)
	BeginIndexing(ctx context.Context, gameID, documentID, model string, dimensions int) (*models.VectorDocument, error)
	CompleteIndexing(ctx context.Context, id string, chunkCount, totalCharacters int) (*models.VectorDocument, error)
	FailIndexing(ctx context.Context, id, reason string) error
}

// Embedder batches texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// VectorStore owns the point set per document.
type VectorStore interface {
	Upsert(ctx context.Context, gameID, documentID string, chunks []vectorstore.ChunkPoint) (int, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Chunker windows document text.
type Chunker interface {
	Prepare(text string) []chunker.Chunk
}

// Indexer executes the extract → chunk → embed → index pipeline for one
// document at a time.
type Indexer struct {
	documents DocumentStore
	records   RecordStore
	chunker   Chunker
	embedder  Embedder
	vectors   VectorStore

	// Per-document serialization; entries live for the process lifetime,
	// bounded by the number of documents seen.
	locks sync.Map // document id -> *sync.Mutex
}

// New creates an Indexer.
func New(documents DocumentStore, records RecordStore, chk Chunker, embedder Embedder, vectors VectorStore) *Indexer {
	return &Indexer{
		documents: documents,
		records:   records,
		chunker:   chk,
		embedder:  embedder,
		vectors:   vectors,
	}
}

// IndexDocument indexes or re-indexes one document. The operation is
// idempotent: an existing vector set is deleted and rebuilt, and the
// vector-document record keeps its id across runs.
func (ix *Indexer) IndexDocument(ctx context.Context, documentID string) (*models.IndexResult, error) {
	lock := ix.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	log := slog.With("document_id", documentID)

	doc, err := ix.documents.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, ErrPdfNotFound
		}
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if strings.TrimSpace(doc.ExtractedText) == "" {
		if existing, err := ix.records.GetByDocument(ctx, documentID); err == nil {
			return nil, ix.fail(ctx, existing.ID, ErrTextExtractionRequired, errors.New("extracted text is empty"))
		}
		return nil, ErrTextExtractionRequired
	}

	// An existing record means a prior run left points behind; delete them
	// before rebuilding so a failure cannot leave a torn set.
	if existing, err := ix.records.GetByDocument(ctx, documentID); err == nil {
		log.Info("Re-indexing document, deleting prior vector set", "record_id", existing.ID)
		if err := ix.vectors.DeleteDocument(ctx, documentID); err != nil {
			return nil, ix.fail(ctx, existing.ID, ErrVectorIndexingFailed, fmt.Errorf("deleting prior points: %w", err))
		}
	} else if !errors.Is(err, services.ErrNotFound) {
		return nil, fmt.Errorf("loading vector document record: %w", err)
	}

	record, err := ix.records.BeginIndexing(ctx, doc.GameID, documentID, ix.embedder.Model(), ix.embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("starting indexing run: %w", err)
	}

	chunks := ix.chunker.Prepare(doc.ExtractedText)
	if len(chunks) == 0 {
		return nil, ix.fail(ctx, record.ID, ErrChunkingFailed, errors.New("text produced no chunks"))
	}

	texts := make([]string, len(chunks))
	totalCharacters := 0
	for i, c := range chunks {
		texts[i] = c.Text
		totalCharacters += len(c.Text)
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, ix.fail(ctx, record.ID, ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(chunks) {
		return nil, ix.fail(ctx, record.ID, ErrEmbeddingFailed,
			fmt.Errorf("expected %d vectors, got %d", len(chunks), len(vectors)))
	}

	points := make([]vectorstore.ChunkPoint, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.ChunkPoint{
			ID:         uuid.New().String(),
			Vector:     vectors[i],
			ChunkIndex: c.Index,
			Text:       c.Text,
			Page:       c.Page,
			CharStart:  c.CharStart,
			CharEnd:    c.CharEnd,
		}
	}

	written, err := ix.vectors.Upsert(ctx, doc.GameID, documentID, points)
	if err != nil {
		return nil, ix.fail(ctx, record.ID, ErrVectorIndexingFailed, err)
	}

	record, err = ix.records.CompleteIndexing(ctx, record.ID, written, totalCharacters)
	if err != nil {
		return nil, fmt.Errorf("completing indexing run: %w", err)
	}

	log.Info("Document indexed",
		"record_id", record.ID, "chunks", written, "characters", totalCharacters)

	return &models.IndexResult{
		Success:          true,
		VectorDocumentID: record.ID,
		ChunkCount:       record.ChunkCount,
		TotalCharacters:  record.TotalCharacters,
		IndexedAt:        *record.IndexedAt,
	}, nil
}

// fail persists the failed status and returns kind wrapped around the
// cause, keeping the cause's chain intact so callers can still detect
// transient provider failures. The status write is best-effort; losing it
// must not mask the original failure.
func (ix *Indexer) fail(ctx context.Context, recordID string, kind, cause error) error {
	if err := ix.records.FailIndexing(ctx, recordID, cause.Error()); err != nil {
		slog.Error("Failed to persist indexing failure",
			"record_id", recordID, "reason", cause.Error(), "error", err)
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

func (ix *Indexer) lockFor(documentID string) *sync.Mutex {
	lock, _ := ix.locks.LoadOrStore(documentID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
