package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meepleai/meepleai/pkg/cache"
	"github.com/meepleai/meepleai/pkg/models"
)

func newStreamFixture(t *testing.T) (*StreamEngine, *cache.ResponseCache, *fakeEmbedder, *fakeSearcher, *fakeStreamer, *fakeLogger) {
	t.Helper()
	c, _ := newTestCache(t)
	embedder := &fakeEmbedder{}
	searcher := &fakeSearcher{results: someResults()}
	streamer := &fakeStreamer{tokens: []string{"Two", " players", " take", " part."}}
	logs := &fakeLogger{}
	engine := NewStreamEngine(c, &fakeResolver{}, embedder, searcher, streamer, logs)
	return engine, c, embedder, searcher, streamer, logs
}

func TestStream_EmptyQueryEmitsSingleError(t *testing.T) {
	engine, _, _, _, _, _ := newStreamFixture(t)

	events := collect(engine.Stream(context.Background(), "x", "   ", models.Identity{}))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, CodeEmptyQuery, events[0].Data.(ErrorPayload).ErrorCode)
}

func TestStream_CacheHitTokenization(t *testing.T) {
	engine, c, embedder, _, _, _ := newStreamFixture(t)
	ctx := context.Background()

	cached := models.QAResponse{
		Answer: "Two players.",
		Snippets: []models.Snippet{
			{Text: "Two players.", Source: "PDF:p1", Page: 1, Line: 0},
		},
		PromptTokens: 0, CompletionTokens: 2, TotalTokens: 2, Confidence: 0.95,
	}
	cache.Set(ctx, c, cache.QAKey("tic-tac-toe", "How many players?"), cached, 0)

	events := collect(engine.Stream(ctx, "tic-tac-toe", "How many players?", models.Identity{}))
	require.Equal(t, []string{
		EventStateUpdate, EventCitations,
		EventToken, EventToken, EventComplete,
	}, eventTypes(events))

	assert.Equal(t, StateCacheHit, events[0].Data.(StatePayload).State)

	citations := events[1].Data.(CitationsPayload)
	require.Len(t, citations.Citations, 1)
	assert.Equal(t, "PDF:p1", citations.Citations[0].Source)

	assert.Equal(t, "Two ", events[2].Data.(TokenPayload).Token)
	assert.Equal(t, "players.", events[3].Data.(TokenPayload).Token)

	complete := events[4].Data.(CompletePayload)
	assert.Equal(t, 0, complete.PromptTokens)
	assert.Equal(t, 2, complete.CompletionTokens)
	assert.Equal(t, 2, complete.TotalTokens)
	assert.InDelta(t, 0.95, complete.Confidence, 1e-9)

	assert.Zero(t, embedder.callCount(), "cache hit must not embed")
}

func TestStream_MissOrderingAndTokenCount(t *testing.T) {
	engine, c, _, _, _, logs := newStreamFixture(t)
	ctx := context.Background()

	events := collect(engine.Stream(ctx, "carcassonne", "How do I score?", models.Identity{UserID: "u1"}))
	require.Equal(t, []string{
		EventStateUpdate, EventStateUpdate, EventStateUpdate,
		EventCitations, EventStateUpdate,
		EventToken, EventToken, EventToken, EventToken,
		EventComplete,
	}, eventTypes(events))

	assert.Equal(t, StateCheckingCache, events[0].Data.(StatePayload).State)
	assert.Equal(t, StateEmbedding, events[1].Data.(StatePayload).State)
	assert.Equal(t, StateSearching, events[2].Data.(StatePayload).State)
	assert.Equal(t, StateGenerating, events[4].Data.(StatePayload).State)

	complete := events[len(events)-1].Data.(CompletePayload)
	assert.Equal(t, 4, complete.CompletionTokens, "completion_tokens must equal emitted token events")
	assert.Equal(t, 0, complete.PromptTokens)
	assert.InDelta(t, 0.95, complete.Confidence, 1e-9)

	// The reassembled answer was written back to cache.
	cached, ok := cache.Get[models.QAResponse](ctx, c, cache.QAKey("carcassonne", "How do I score?"))
	require.True(t, ok)
	assert.Equal(t, "Two players take part.", cached.Answer)
	assert.Equal(t, 4, cached.CompletionTokens)

	entries := logs.logged()
	require.Len(t, entries, 1)
	assert.Equal(t, models.EndpointQAStream, entries[0].Endpoint)
	assert.True(t, entries[0].Success)
}

func TestStream_EmbeddingFailure(t *testing.T) {
	engine, c, embedder, _, _, _ := newStreamFixture(t)
	embedder.err = errors.New("503")
	ctx := context.Background()

	events := collect(engine.Stream(ctx, "g1", "q", models.Identity{}))
	types := eventTypes(events)
	require.Equal(t, []string{EventStateUpdate, EventStateUpdate, EventError}, types)
	assert.Equal(t, CodeEmbeddingFailed, events[2].Data.(ErrorPayload).ErrorCode)

	_, ok := cache.Get[models.QAResponse](ctx, c, cache.QAKey("g1", "q"))
	assert.False(t, ok, "failed streams must not write the cache")
}

func TestStream_NoResults(t *testing.T) {
	engine, _, _, searcher, _, _ := newStreamFixture(t)
	searcher.results = nil

	events := collect(engine.Stream(context.Background(), "g1", "q", models.Identity{}))
	last := events[len(events)-1]
	require.Equal(t, EventError, last.Type)
	assert.Equal(t, CodeNoResults, last.Data.(ErrorPayload).ErrorCode)

	for _, ev := range events {
		assert.NotEqual(t, EventComplete, ev.Type, "no complete after error")
	}
}

func TestStream_LlmFailure(t *testing.T) {
	engine, c, _, _, streamer, _ := newStreamFixture(t)
	streamer.tokens = []string{"partial"}
	streamer.err = errors.New("stream died")
	ctx := context.Background()

	events := collect(engine.Stream(ctx, "g1", "q", models.Identity{}))
	last := events[len(events)-1]
	require.Equal(t, EventError, last.Type)
	assert.Equal(t, CodeLlmFailed, last.Data.(ErrorPayload).ErrorCode)

	_, ok := cache.Get[models.QAResponse](ctx, c, cache.QAKey("g1", "q"))
	assert.False(t, ok, "errored streams must not write the cache")
}

func TestStream_CancellationStopsEmissionAndSkipsCacheWrite(t *testing.T) {
	engine, c, _, _, streamer, _ := newStreamFixture(t)
	streamer.tokens = []string{"a", "b", "c", "d", "e"}
	// Allow exactly two tokens through; the streamer then blocks until the
	// context is cancelled.
	streamer.release = make(chan struct{}, 2)
	streamer.release <- struct{}{}
	streamer.release <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := engine.Stream(ctx, "g1", "q", models.Identity{})

	seen := 0
	for ev := range events {
		if ev.Type == EventToken {
			seen++
			if seen == 2 {
				cancel()
			}
		}
		if ev.Type == EventComplete {
			t.Fatal("complete must not be emitted after cancellation")
		}
	}
	assert.Equal(t, 2, seen)

	_, ok := cache.Get[models.QAResponse](context.Background(), c, cache.QAKey("g1", "q"))
	assert.False(t, ok, "cancelled streams must not write the cache")
}
