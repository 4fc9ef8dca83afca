package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meepleai/meepleai/pkg/models"
	testdb "github.com/meepleai/meepleai/test/database"
)

func TestDocumentLifecycleWithIndexingRecord(t *testing.T) {
	pool := testdb.NewTestPool(t)
	games := NewGameService(pool)
	docs := NewDocumentService(pool)
	records := NewVectorDocumentService(pool)
	ctx := context.Background()

	_, err := games.CreateGame(ctx, "carcassonne", "Carcassonne")
	require.NoError(t, err)

	doc, err := docs.CreateDocument(ctx, CreateDocumentRequest{
		GameID:        "carcassonne",
		FileName:      "rules.pdf",
		FileSizeBytes: 1024,
		UploadedBy:    "u1",
		ExtractedText: "Players take turns placing tiles.",
		PageCount:     12,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, doc.ProcessingStatus)
	assert.Equal(t, 33, doc.CharacterCount)

	loaded, err := docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Players take turns placing tiles.", loaded.ExtractedText)

	// First indexing run creates the record; the second reuses its id.
	record, err := records.BeginIndexing(ctx, "carcassonne", doc.ID, "test-embed", 8)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, record.IndexingStatus)

	completed, err := records.CompleteIndexing(ctx, record.ID, 7, 3300)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, completed.IndexingStatus)
	assert.Equal(t, 7, completed.ChunkCount)
	require.NotNil(t, completed.IndexedAt)

	again, err := records.BeginIndexing(ctx, "carcassonne", doc.ID, "test-embed", 8)
	require.NoError(t, err)
	assert.Equal(t, record.ID, again.ID, "re-indexing must preserve the record id")
	assert.Equal(t, models.DocStatusProcessing, again.IndexingStatus)

	require.NoError(t, records.FailIndexing(ctx, record.ID, "embedding failed"))
	failed, err := records.GetByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, failed.IndexingStatus)
	assert.Equal(t, "embedding failed", failed.IndexingError)

	// Deleting the document cascades to the record.
	require.NoError(t, docs.DeleteDocument(ctx, doc.ID))
	_, err = records.GetByDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentWithoutTextLandsFailed(t *testing.T) {
	pool := testdb.NewTestPool(t)
	games := NewGameService(pool)
	docs := NewDocumentService(pool)
	ctx := context.Background()

	_, err := games.CreateGame(ctx, "g1", "Game One")
	require.NoError(t, err)

	doc, err := docs.CreateDocument(ctx, CreateDocumentRequest{
		GameID: "g1", FileName: "scan.pdf", ExtractedText: "   ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, doc.ProcessingStatus)
	assert.NotEmpty(t, doc.ExtractionError)
}

func TestRequestLogAppendAndRecent(t *testing.T) {
	pool := testdb.NewTestPool(t)
	logs := NewRequestLogService(pool)
	ctx := context.Background()

	confidence := 0.9
	for _, endpoint := range []string{models.EndpointQA, models.EndpointQAStream, models.EndpointExplain} {
		require.NoError(t, logs.Append(ctx, models.AIRequestLog{
			Endpoint:   endpoint,
			GameID:     "g1",
			UserID:     "u1",
			Query:      "how to win",
			LatencyMs:  42,
			Confidence: &confidence,
			Success:    true,
		}))
	}

	recent, err := logs.Recent(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "how to win", recent[0].Query)
	require.NotNil(t, recent[0].Confidence)
	assert.InDelta(t, 0.9, *recent[0].Confidence, 1e-9)
}
