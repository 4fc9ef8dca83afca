package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meepleai/meepleai/pkg/cache"
	"github.com/meepleai/meepleai/pkg/llm"
	"github.com/meepleai/meepleai/pkg/models"
)

const outlineText = `# Scoring cities
## Completed cities
- Two points per tile
- One point per pennant
## Incomplete cities
- One point per tile at game end`

func newExplainFixture(t *testing.T) (*ExplainEngine, *cache.ResponseCache, *fakeCompleter, *fakeLogger) {
	t.Helper()
	c, _ := newTestCache(t)
	completer := &fakeCompleter{completion: &llm.Completion{
		Text: outlineText, PromptTokens: 200, CompletionTokens: 40,
	}}
	logs := &fakeLogger{}
	games := &fakeGames{games: map[string]*models.Game{
		"carcassonne": {ID: "carcassonne", Name: "Carcassonne"},
	}}
	engine := NewExplainEngine(c, &fakeResolver{}, &fakeEmbedder{},
		&fakeSearcher{results: someResults()}, completer, games, logs)
	return engine, c, completer, logs
}

func TestParseOutline(t *testing.T) {
	outline := parseOutline(outlineText, "fallback")
	assert.Equal(t, "Scoring cities", outline.MainTopic)
	require.Len(t, outline.Sections, 2)
	assert.Equal(t, "Completed cities", outline.Sections[0].Title)
	assert.Equal(t, []string{"Two points per tile", "One point per pennant"}, outline.Sections[0].Points)
	assert.Equal(t, "Incomplete cities", outline.Sections[1].Title)
}

func TestParseOutline_FreeTextFallsBackToOverview(t *testing.T) {
	outline := parseOutline("Just a plain paragraph.\nAnother line.", "scoring")
	assert.Equal(t, "scoring", outline.MainTopic)
	require.Len(t, outline.Sections, 1)
	assert.Equal(t, "Overview", outline.Sections[0].Title)
	assert.Len(t, outline.Sections[0].Points, 2)
}

func TestExplain_ValidatesInput(t *testing.T) {
	engine, _, _, _ := newExplainFixture(t)
	ctx := context.Background()

	_, err := engine.Explain(ctx, "", "scoring", models.Identity{})
	assert.ErrorIs(t, err, ErrEmptyGameID)
	_, err = engine.Explain(ctx, "g1", " ", models.Identity{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestExplain_GeneratesAndCaches(t *testing.T) {
	engine, c, completer, logs := newExplainFixture(t)
	ctx := context.Background()

	resp, err := engine.Explain(ctx, "carcassonne", "Scoring cities", models.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Scoring cities", resp.Outline.MainTopic)
	assert.Len(t, resp.Outline.Sections, 2)
	assert.Equal(t, 240, resp.TotalTokens)
	assert.InDelta(t, 0.95, resp.Confidence, 1e-9)

	cached, ok := cache.Get[models.ExplainResponse](ctx, c,
		cache.ExplainKey("carcassonne", "Scoring cities"))
	require.True(t, ok)
	assert.Equal(t, *resp, cached)

	// Second call is served from cache.
	_, err = engine.Explain(ctx, "carcassonne", "Scoring cities", models.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, completer.callCount())

	entries := logs.logged()
	require.Len(t, entries, 2)
	assert.False(t, entries[0].FromCache)
	assert.True(t, entries[1].FromCache)
	assert.Equal(t, models.EndpointExplain, entries[0].Endpoint)
}

func TestSetup_GeneratesAndCaches(t *testing.T) {
	engine, c, completer, logs := newExplainFixture(t)
	ctx := context.Background()

	resp, err := engine.Setup(ctx, "carcassonne", models.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Outline.Sections)

	cached, ok := cache.Get[models.SetupResponse](ctx, c, cache.SetupKey("carcassonne"))
	require.True(t, ok)
	assert.Equal(t, *resp, cached)

	_, err = engine.Setup(ctx, "carcassonne", models.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, completer.callCount())

	entries := logs.logged()
	require.Len(t, entries, 2)
	assert.Equal(t, models.EndpointSetup, entries[0].Endpoint)
}

func TestSetup_UnknownGameFallsBackToID(t *testing.T) {
	engine, _, _, _ := newExplainFixture(t)
	resp, err := engine.Setup(context.Background(), "uncatalogued", models.Identity{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Outline.Sections)
}

func TestExplain_NoResults(t *testing.T) {
	c, _ := newTestCache(t)
	engine := NewExplainEngine(c, &fakeResolver{}, &fakeEmbedder{},
		&fakeSearcher{}, &fakeCompleter{}, &fakeGames{}, &fakeLogger{})

	_, err := engine.Explain(context.Background(), "g1", "anything", models.Identity{})
	assert.ErrorIs(t, err, ErrNoResults)
}
