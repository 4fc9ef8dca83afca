package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meepleai/meepleai/pkg/llm"
	"github.com/meepleai/meepleai/pkg/models"
	"github.com/meepleai/meepleai/pkg/vectorstore"
)

// Embedder embeds a single query text.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a game-scoped nearest-neighbor search.
type Searcher interface {
	Search(ctx context.Context, gameID string, vector []float32, limit int) ([]vectorstore.SearchResult, error)
}

// PromptResolver resolves the active content for a prompt name.
type PromptResolver interface {
	GetActive(ctx context.Context, name string) (string, error)
}

// Completer runs a blocking chat completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (*llm.Completion, error)
}

// TokenStreamer runs a streaming chat completion.
type TokenStreamer interface {
	Stream(ctx context.Context, system, user string) (<-chan string, <-chan error)
}

// RequestLogger appends AI request log rows. Logging is best-effort.
type RequestLogger interface {
	Append(ctx context.Context, log models.AIRequestLog) error
}

// Built-in fallbacks used when no active prompt is registered.
const (
	defaultQAPrompt = "You are a board-game rules assistant. Answer the question using ONLY " +
		"the provided rulebook context. If the context does not contain the answer, say so. " +
		"Be concise and cite the relevant rule."
	defaultExplainPrompt = "You are a board-game rules teacher. Using ONLY the provided rulebook " +
		"context, produce a structured outline explaining the topic: a main heading (# ), section " +
		"headings (## ), and short bullet points (- ) under each section."
	defaultSetupPrompt = "You are a board-game setup assistant. Using ONLY the provided rulebook " +
		"context, produce a deterministic setup checklist as a structured outline: a main heading " +
		"(# ), section headings (## ), and short bullet points (- ) in setup order."
)

// resolvePrompt fetches the active prompt content, falling back to the
// built-in default when the registry has nothing for the name.
func resolvePrompt(ctx context.Context, resolver PromptResolver, name, fallback string) string {
	content, err := resolver.GetActive(ctx, name)
	if err != nil || strings.TrimSpace(content) == "" {
		if err != nil {
			slog.Warn("Active prompt unavailable, using built-in default", "name", name, "error", err)
		}
		return fallback
	}
	return content
}

// buildContext renders numbered snippets for the user prompt.
func buildContext(results []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [PDF:%s p.%d] %s\n", i+1, r.DocumentID, r.Page, r.Text)
	}
	return b.String()
}

// toSnippets converts search results into response snippets.
func toSnippets(results []vectorstore.SearchResult) []models.Snippet {
	snippets := make([]models.Snippet, len(results))
	for i, r := range results {
		snippets[i] = models.Snippet{
			Text:   r.Text,
			Source: "PDF:" + r.DocumentID,
			Page:   r.Page,
			Line:   0,
			Score:  r.Score,
		}
	}
	return snippets
}

// maxScore returns the highest result score, the response confidence.
func maxScore(results []vectorstore.SearchResult) float64 {
	best := 0.0
	for _, r := range results {
		if r.Score > best {
			best = r.Score
		}
	}
	return best
}
