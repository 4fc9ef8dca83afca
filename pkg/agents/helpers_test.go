package agents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meepleai/meepleai/pkg/cache"
	"github.com/meepleai/meepleai/pkg/llm"
	"github.com/meepleai/meepleai/pkg/models"
	"github.com/meepleai/meepleai/pkg/services"
	"github.com/meepleai/meepleai/pkg/vectorstore"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSearcher struct {
	results []vectorstore.SearchResult
	err     error
}

func (f *fakeSearcher) Search(context.Context, string, []float32, int) ([]vectorstore.SearchResult, error) {
	return f.results, f.err
}

type fakeCompleter struct {
	mu         sync.Mutex
	completion *llm.Completion
	err        error
	calls      int
}

func (f *fakeCompleter) Complete(context.Context, string, string) (*llm.Completion, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStreamer struct {
	tokens  []string
	err     error
	release chan struct{} // when set, wait before each token
}

func (f *fakeStreamer) Stream(ctx context.Context, _, _ string) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(tokens)
		defer close(errs)
		for _, tok := range f.tokens {
			if f.release != nil {
				select {
				case <-f.release:
				case <-ctx.Done():
					return
				}
			}
			select {
			case tokens <- tok:
			case <-ctx.Done():
				return
			}
		}
		if f.err != nil {
			errs <- f.err
		}
	}()
	return tokens, errs
}

type fakeResolver struct {
	prompts map[string]string
}

func (f *fakeResolver) GetActive(_ context.Context, name string) (string, error) {
	if content, ok := f.prompts[name]; ok {
		return content, nil
	}
	return "", services.ErrNotFound
}

type fakeLogger struct {
	mu      sync.Mutex
	entries []models.AIRequestLog
}

func (f *fakeLogger) Append(_ context.Context, entry models.AIRequestLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogger) logged() []models.AIRequestLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.AIRequestLog, len(f.entries))
	copy(out, f.entries)
	return out
}

type fakeGames struct {
	games map[string]*models.Game
}

func (f *fakeGames) GetGame(_ context.Context, id string) (*models.Game, error) {
	if g, ok := f.games[id]; ok {
		return g, nil
	}
	return nil, services.ErrNotFound
}

func newTestCache(t *testing.T) (*cache.ResponseCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.New(rdb, nil, time.Hour, time.Second), mr
}

func someResults() []vectorstore.SearchResult {
	return []vectorstore.SearchResult{
		{Score: 0.95, Text: "Two players.", Page: 1, DocumentID: "p1", ChunkIndex: 0},
		{Score: 0.71, Text: "Players alternate turns.", Page: 2, DocumentID: "p1", ChunkIndex: 4},
	}
}

// collect drains a stream into a slice of events.
func collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}
