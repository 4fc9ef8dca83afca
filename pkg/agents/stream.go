package agents

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/meepleai/meepleai/pkg/cache"
	"github.com/meepleai/meepleai/pkg/models"
	"github.com/meepleai/meepleai/pkg/prompts"
)

// StreamEngine answers rulebook questions over an ordered SSE event
// sequence, streaming tokens as they arrive from the LLM. Events are
// produced into a bounded channel consumed by the HTTP layer, so consumer
// backpressure and cancellation are decoupled from the LLM stream.
type StreamEngine struct {
	cache    *cache.ResponseCache
	prompts  PromptResolver
	embedder Embedder
	searcher Searcher
	llm      TokenStreamer
	logs     RequestLogger
}

// NewStreamEngine creates a StreamEngine.
func NewStreamEngine(c *cache.ResponseCache, resolver PromptResolver, embedder Embedder, searcher Searcher, streamer TokenStreamer, logs RequestLogger) *StreamEngine {
	return &StreamEngine{
		cache:    c,
		prompts:  resolver,
		embedder: embedder,
		searcher: searcher,
		llm:      streamer,
		logs:     logs,
	}
}

// Stream runs the streaming QA pipeline. The returned channel is closed
// when the stream ends: after complete, after error, or at cancellation.
func (e *StreamEngine) Stream(ctx context.Context, gameID, query string, caller models.Identity) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		e.run(ctx, strings.TrimSpace(gameID), strings.TrimSpace(query), caller, out)
	}()
	return out
}

func (e *StreamEngine) run(ctx context.Context, gameID, query string, caller models.Identity, out chan<- Event) {
	start := time.Now()

	if gameID == "" || query == "" {
		e.emit(ctx, out, Event{EventError, ErrorPayload{ErrorCode: CodeEmptyQuery}})
		return
	}

	// A hit replays the cached answer as its own compact sequence, so the
	// "checking cache" update is only surfaced on the miss path.
	key := cache.QAKey(gameID, query)
	if cached, ok := cache.Get[models.QAResponse](ctx, e.cache, key); ok {
		e.replayCached(ctx, out, &cached)
		e.log(ctx, gameID, query, caller, &cached, start, true, "")
		return
	}

	if !e.emit(ctx, out, Event{EventStateUpdate, StatePayload{StateCheckingCache}}) {
		return
	}
	if !e.emit(ctx, out, Event{EventStateUpdate, StatePayload{StateEmbedding}}) {
		return
	}

	vector, err := e.embedder.EmbedOne(ctx, query)
	if err != nil || len(vector) == 0 {
		e.emit(ctx, out, Event{EventError, ErrorPayload{ErrorCode: CodeEmbeddingFailed}})
		e.log(ctx, gameID, query, caller, nil, start, false, CodeEmbeddingFailed)
		return
	}

	if !e.emit(ctx, out, Event{EventStateUpdate, StatePayload{StateSearching}}) {
		return
	}

	results, err := e.searcher.Search(ctx, gameID, vector, searchLimit)
	if err != nil || len(results) == 0 {
		e.emit(ctx, out, Event{EventError, ErrorPayload{ErrorCode: CodeNoResults}})
		e.log(ctx, gameID, query, caller, nil, start, false, CodeNoResults)
		return
	}

	snippets := toSnippets(results)
	if !e.emit(ctx, out, Event{EventCitations, citationsFor(snippets)}) {
		return
	}
	if !e.emit(ctx, out, Event{EventStateUpdate, StatePayload{StateGenerating}}) {
		return
	}

	system := resolvePrompt(ctx, e.prompts, prompts.QASystemPrompt, defaultQAPrompt)
	user := buildContext(results) + "\nQuestion: " + query

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	tokens, errs := e.llm.Stream(streamCtx, system, user)

	var answer strings.Builder
	emitted := 0
	for token := range tokens {
		if !e.emit(ctx, out, Event{EventToken, TokenPayload{Token: token}}) {
			return
		}
		answer.WriteString(token)
		emitted++
	}

	if err := <-errs; err != nil {
		e.emit(ctx, out, Event{EventError, ErrorPayload{ErrorCode: CodeLlmFailed}})
		e.log(ctx, gameID, query, caller, nil, start, false, CodeLlmFailed)
		return
	}
	if ctx.Err() != nil {
		// Cancelled mid-stream: no complete event, no cache write.
		return
	}

	confidence := maxScore(results)
	response := models.QAResponse{
		Answer:           answer.String(),
		Snippets:         snippets,
		PromptTokens:     0,
		CompletionTokens: emitted,
		TotalTokens:      emitted,
		Confidence:       confidence,
	}

	if !e.emit(ctx, out, Event{EventComplete, CompletePayload{
		PromptTokens:     response.PromptTokens,
		CompletionTokens: response.CompletionTokens,
		TotalTokens:      response.TotalTokens,
		Confidence:       response.Confidence,
	}}) {
		return
	}

	cache.Set(ctx, e.cache, cache.QAKey(gameID, query), response, 0, cache.GameTag(gameID))
	e.log(ctx, gameID, query, caller, &response, start, false, "")
}

// replayCached emits the cached answer as the hit sequence: state,
// citations, one token per word (trailing space on all but the last),
// then complete with the cached counters.
func (e *StreamEngine) replayCached(ctx context.Context, out chan<- Event, cached *models.QAResponse) {
	if !e.emit(ctx, out, Event{EventStateUpdate, StatePayload{StateCacheHit}}) {
		return
	}
	if !e.emit(ctx, out, Event{EventCitations, citationsFor(cached.Snippets)}) {
		return
	}

	words := strings.Fields(cached.Answer)
	for i, word := range words {
		token := word
		if i < len(words)-1 {
			token += " "
		}
		if !e.emit(ctx, out, Event{EventToken, TokenPayload{Token: token}}) {
			return
		}
	}

	e.emit(ctx, out, Event{EventComplete, CompletePayload{
		PromptTokens:     cached.PromptTokens,
		CompletionTokens: cached.CompletionTokens,
		TotalTokens:      cached.TotalTokens,
		Confidence:       cached.Confidence,
	}})
}

// emit delivers one event unless the caller has gone away. Returning
// false stops the state machine at the next yield point.
func (e *StreamEngine) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func citationsFor(snippets []models.Snippet) CitationsPayload {
	citations := make([]Citation, len(snippets))
	for i, s := range snippets {
		citations[i] = Citation{Text: s.Text, Source: s.Source, Page: s.Page, Line: s.Line}
	}
	return CitationsPayload{Citations: citations}
}

func (e *StreamEngine) log(ctx context.Context, gameID, query string, caller models.Identity, resp *models.QAResponse, start time.Time, fromCache bool, errorCode string) {
	entry := models.AIRequestLog{
		Endpoint:  models.EndpointQAStream,
		GameID:    gameID,
		UserID:    caller.UserID,
		Query:     query,
		LatencyMs: time.Since(start).Milliseconds(),
		FromCache: fromCache,
		Success:   errorCode == "",
	}
	if resp != nil {
		entry.PromptTokens = resp.PromptTokens
		entry.CompletionTokens = resp.CompletionTokens
		entry.TotalTokens = resp.TotalTokens
		confidence := resp.Confidence
		entry.Confidence = &confidence
	}
	if errorCode != "" {
		entry.ErrorMessage = errorCode
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		slog.Warn("AI request log write failed", "endpoint", entry.Endpoint, "error", err)
	}
}
