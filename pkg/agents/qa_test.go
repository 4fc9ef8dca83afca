package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meepleai/meepleai/pkg/cache"
	"github.com/meepleai/meepleai/pkg/llm"
	"github.com/meepleai/meepleai/pkg/models"
)

func newQAFixture(t *testing.T) (*QAEngine, *cache.ResponseCache, *fakeEmbedder, *fakeSearcher, *fakeCompleter, *fakeLogger) {
	t.Helper()
	c, _ := newTestCache(t)
	embedder := &fakeEmbedder{}
	searcher := &fakeSearcher{results: someResults()}
	completer := &fakeCompleter{completion: &llm.Completion{
		Text: "Two players take part.", PromptTokens: 120, CompletionTokens: 5,
	}}
	logs := &fakeLogger{}
	engine := NewQAEngine(c, &fakeResolver{}, embedder, searcher, completer, logs)
	return engine, c, embedder, searcher, completer, logs
}

func TestAnswer_ValidatesInput(t *testing.T) {
	engine, _, _, _, _, _ := newQAFixture(t)
	ctx := context.Background()

	_, err := engine.Answer(ctx, "", "query", models.Identity{})
	assert.ErrorIs(t, err, ErrEmptyGameID)

	_, err = engine.Answer(ctx, "g1", "   ", models.Identity{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAnswer_CacheHitSkipsPipeline(t *testing.T) {
	engine, c, embedder, _, completer, logs := newQAFixture(t)
	ctx := context.Background()

	cached := models.QAResponse{
		Answer: "Two players.",
		Snippets: []models.Snippet{
			{Text: "Two players.", Source: "PDF:p1", Page: 1, Line: 0},
		},
		CompletionTokens: 2, TotalTokens: 2, Confidence: 0.95,
	}
	cache.Set(ctx, c, cache.QAKey("tic-tac-toe", "How many players?"), cached, 0)

	got, err := engine.Answer(ctx, "tic-tac-toe", "How many players?", models.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, cached, *got)
	assert.Zero(t, embedder.callCount(), "cache hit must not embed")
	assert.Zero(t, completer.callCount(), "cache hit must not call the LLM")

	entries := logs.logged()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].FromCache)
	assert.True(t, entries[0].Success)
	assert.Equal(t, models.EndpointQA, entries[0].Endpoint)
}

func TestAnswer_MissRunsPipelineAndCaches(t *testing.T) {
	engine, c, _, _, _, logs := newQAFixture(t)
	ctx := context.Background()

	got, err := engine.Answer(ctx, "carcassonne", "How do I score a city?", models.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Two players take part.", got.Answer)
	assert.Equal(t, 125, got.TotalTokens)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
	require.Len(t, got.Snippets, 2)
	assert.Equal(t, "PDF:p1", got.Snippets[0].Source)

	// The response was cached under the QA key.
	cached, ok := cache.Get[models.QAResponse](ctx, c, cache.QAKey("carcassonne", "How do I score a city?"))
	require.True(t, ok)
	assert.Equal(t, *got, cached)

	entries := logs.logged()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].FromCache)
}

func TestAnswer_NoResults(t *testing.T) {
	engine, _, _, searcher, _, logs := newQAFixture(t)
	searcher.results = nil

	_, err := engine.Answer(context.Background(), "g1", "anything", models.Identity{})
	assert.ErrorIs(t, err, ErrNoResults)

	entries := logs.logged()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
}

func TestAnswer_SearchFailureSurfacesAsNoResults(t *testing.T) {
	engine, _, _, searcher, _, _ := newQAFixture(t)
	searcher.results = nil
	searcher.err = errors.New("qdrant timeout")

	_, err := engine.Answer(context.Background(), "g1", "anything", models.Identity{})
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestAnswer_EmbeddingFailure(t *testing.T) {
	engine, _, embedder, _, _, _ := newQAFixture(t)
	embedder.err = errors.New("503")

	_, err := engine.Answer(context.Background(), "g1", "anything", models.Identity{})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestAnswer_LlmFailure(t *testing.T) {
	engine, _, _, _, completer, _ := newQAFixture(t)
	completer.err = errors.New("upstream down")
	completer.completion = nil

	_, err := engine.Answer(context.Background(), "g1", "anything", models.Identity{})
	assert.ErrorIs(t, err, ErrLlmFailed)
}
