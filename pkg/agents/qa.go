package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meepleai/meepleai/pkg/cache"
	"github.com/meepleai/meepleai/pkg/models"
	"github.com/meepleai/meepleai/pkg/prompts"
)

// searchLimit is the number of nearest chunks retrieved per question.
const searchLimit = 5

// QAEngine answers rulebook questions cache-first; on a miss it runs
// embed → search → complete and stores the result.
type QAEngine struct {
	cache    *cache.ResponseCache
	prompts  PromptResolver
	embedder Embedder
	searcher Searcher
	llm      Completer
	logs     RequestLogger
}

// NewQAEngine creates a QAEngine.
func NewQAEngine(c *cache.ResponseCache, resolver PromptResolver, embedder Embedder, searcher Searcher, completer Completer, logs RequestLogger) *QAEngine {
	return &QAEngine{
		cache:    c,
		prompts:  resolver,
		embedder: embedder,
		searcher: searcher,
		llm:      completer,
		logs:     logs,
	}
}

// Answer handles one question for one game.
func (e *QAEngine) Answer(ctx context.Context, gameID, query string, caller models.Identity) (*models.QAResponse, error) {
	gameID = strings.TrimSpace(gameID)
	query = strings.TrimSpace(query)
	if gameID == "" {
		return nil, ErrEmptyGameID
	}
	if query == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	key := cache.QAKey(gameID, query)

	if cached, ok := cache.Get[models.QAResponse](ctx, e.cache, key); ok {
		e.log(ctx, gameID, query, caller, &cached, start, true, nil)
		return &cached, nil
	}

	response, err := e.generate(ctx, gameID, query)
	if err != nil {
		e.log(ctx, gameID, query, caller, nil, start, false, err)
		return nil, err
	}

	cache.Set(ctx, e.cache, key, *response, 0, cache.GameTag(gameID))
	e.log(ctx, gameID, query, caller, response, start, false, nil)
	return response, nil
}

// generate runs the uncached RAG pipeline.
func (e *QAEngine) generate(ctx context.Context, gameID, query string) (*models.QAResponse, error) {
	system := resolvePrompt(ctx, e.prompts, prompts.QASystemPrompt, defaultQAPrompt)

	vector, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbeddingFailed)
	}

	results, err := e.searcher.Search(ctx, gameID, vector, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoResults, err)
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	user := buildContext(results) + "\nQuestion: " + query
	completion, err := e.llm.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLlmFailed, err)
	}

	return &models.QAResponse{
		Answer:           completion.Text,
		Snippets:         toSnippets(results),
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		TotalTokens:      completion.PromptTokens + completion.CompletionTokens,
		Confidence:       maxScore(results),
	}, nil
}

// log appends the AI request record; failures must never break the
// response.
func (e *QAEngine) log(ctx context.Context, gameID, query string, caller models.Identity, resp *models.QAResponse, start time.Time, fromCache bool, opErr error) {
	entry := models.AIRequestLog{
		Endpoint:  models.EndpointQA,
		GameID:    gameID,
		UserID:    caller.UserID,
		Query:     query,
		LatencyMs: time.Since(start).Milliseconds(),
		FromCache: fromCache,
		Success:   opErr == nil,
	}
	if resp != nil {
		entry.PromptTokens = resp.PromptTokens
		entry.CompletionTokens = resp.CompletionTokens
		entry.TotalTokens = resp.TotalTokens
		confidence := resp.Confidence
		entry.Confidence = &confidence
	}
	if opErr != nil {
		entry.ErrorMessage = opErr.Error()
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		slog.Warn("AI request log write failed", "endpoint", entry.Endpoint, "error", err)
	}
}
