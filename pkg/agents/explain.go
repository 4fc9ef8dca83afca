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

// GameResolver resolves a game's display name for setup prompts.
type GameResolver interface {
	GetGame(ctx context.Context, id string) (*models.Game, error)
}

// ExplainEngine produces structured topic explanations and setup guides
// over the same RAG pipeline as QA, cached under their own keys.
type ExplainEngine struct {
	cache    *cache.ResponseCache
	prompts  PromptResolver
	embedder Embedder
	searcher Searcher
	llm      Completer
	games    GameResolver
	logs     RequestLogger
}

// NewExplainEngine creates an ExplainEngine.
func NewExplainEngine(c *cache.ResponseCache, resolver PromptResolver, embedder Embedder, searcher Searcher, completer Completer, games GameResolver, logs RequestLogger) *ExplainEngine {
	return &ExplainEngine{
		cache:    c,
		prompts:  resolver,
		embedder: embedder,
		searcher: searcher,
		llm:      completer,
		games:    games,
		logs:     logs,
	}
}

// Explain produces an outline explaining one topic of one game.
func (e *ExplainEngine) Explain(ctx context.Context, gameID, topic string, caller models.Identity) (*models.ExplainResponse, error) {
	gameID = strings.TrimSpace(gameID)
	topic = strings.TrimSpace(topic)
	if gameID == "" {
		return nil, ErrEmptyGameID
	}
	if topic == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	key := cache.ExplainKey(gameID, topic)
	if cached, ok := cache.Get[models.ExplainResponse](ctx, e.cache, key); ok {
		e.log(ctx, models.EndpointExplain, gameID, topic, caller, cached.TotalTokens, cached.Confidence, start, true, nil)
		return &cached, nil
	}

	system := resolvePrompt(ctx, e.prompts, prompts.ExplainSystemPrompt, defaultExplainPrompt)
	instruction := fmt.Sprintf("Explain the topic %q as a structured outline.", topic)

	outline, snippets, completion, err := e.generate(ctx, gameID, topic, system, instruction, topic)
	if err != nil {
		e.log(ctx, models.EndpointExplain, gameID, topic, caller, 0, 0, start, false, err)
		return nil, err
	}

	response := &models.ExplainResponse{
		Outline:          outline,
		Snippets:         snippets,
		PromptTokens:     completion.promptTokens,
		CompletionTokens: completion.completionTokens,
		TotalTokens:      completion.promptTokens + completion.completionTokens,
		Confidence:       completion.confidence,
	}
	cache.Set(ctx, e.cache, key, *response, 0, cache.GameTag(gameID))
	e.log(ctx, models.EndpointExplain, gameID, topic, caller, response.TotalTokens, response.Confidence, start, false, nil)
	return response, nil
}

// Setup produces a deterministic setup checklist for one game. There is
// no free-form topic; the retrieval query and the instruction are derived
// from the game itself.
func (e *ExplainEngine) Setup(ctx context.Context, gameID string, caller models.Identity) (*models.SetupResponse, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, ErrEmptyGameID
	}

	start := time.Now()
	key := cache.SetupKey(gameID)
	if cached, ok := cache.Get[models.SetupResponse](ctx, e.cache, key); ok {
		e.log(ctx, models.EndpointSetup, gameID, "", caller, cached.TotalTokens, cached.Confidence, start, true, nil)
		return &cached, nil
	}

	gameName := gameID
	if game, err := e.games.GetGame(ctx, gameID); err == nil {
		gameName = game.Name
	}

	system := resolvePrompt(ctx, e.prompts, prompts.SetupSystemPrompt, defaultSetupPrompt)
	searchQuery := gameName + " setup components preparation"
	instruction := fmt.Sprintf("Produce the complete setup checklist for %s, in order.", gameName)

	outline, snippets, completion, err := e.generate(ctx, gameID, searchQuery, system, instruction, gameName+" setup")
	if err != nil {
		e.log(ctx, models.EndpointSetup, gameID, "", caller, 0, 0, start, false, err)
		return nil, err
	}

	response := &models.SetupResponse{
		Outline:          outline,
		Snippets:         snippets,
		PromptTokens:     completion.promptTokens,
		CompletionTokens: completion.completionTokens,
		TotalTokens:      completion.promptTokens + completion.completionTokens,
		Confidence:       completion.confidence,
	}
	cache.Set(ctx, e.cache, key, *response, 0, cache.GameTag(gameID))
	e.log(ctx, models.EndpointSetup, gameID, "", caller, response.TotalTokens, response.Confidence, start, false, nil)
	return response, nil
}

type generationStats struct {
	promptTokens     int
	completionTokens int
	confidence       float64
}

// generate runs embed → search → complete and parses the outline.
func (e *ExplainEngine) generate(ctx context.Context, gameID, searchQuery, system, instruction, fallbackTopic string) (models.Outline, []models.Snippet, generationStats, error) {
	var stats generationStats

	vector, err := e.embedder.EmbedOne(ctx, searchQuery)
	if err != nil || len(vector) == 0 {
		return models.Outline{}, nil, stats, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	results, err := e.searcher.Search(ctx, gameID, vector, searchLimit)
	if err != nil {
		return models.Outline{}, nil, stats, fmt.Errorf("%w: %v", ErrNoResults, err)
	}
	if len(results) == 0 {
		return models.Outline{}, nil, stats, ErrNoResults
	}

	user := buildContext(results) + "\n" + instruction
	completion, err := e.llm.Complete(ctx, system, user)
	if err != nil {
		return models.Outline{}, nil, stats, fmt.Errorf("%w: %v", ErrLlmFailed, err)
	}

	stats = generationStats{
		promptTokens:     completion.PromptTokens,
		completionTokens: completion.CompletionTokens,
		confidence:       maxScore(results),
	}
	return parseOutline(completion.Text, fallbackTopic), toSnippets(results), stats, nil
}

func (e *ExplainEngine) log(ctx context.Context, endpoint, gameID, query string, caller models.Identity, totalTokens int, confidence float64, start time.Time, fromCache bool, opErr error) {
	entry := models.AIRequestLog{
		Endpoint:    endpoint,
		GameID:      gameID,
		UserID:      caller.UserID,
		Query:       query,
		LatencyMs:   time.Since(start).Milliseconds(),
		TotalTokens: totalTokens,
		FromCache:   fromCache,
		Success:     opErr == nil,
	}
	if opErr == nil {
		c := confidence
		entry.Confidence = &c
	} else {
		entry.ErrorMessage = opErr.Error()
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		slog.Warn("AI request log write failed", "endpoint", endpoint, "error", err)
	}
}
