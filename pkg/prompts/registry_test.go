package prompts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meepleai/meepleai/pkg/models"
	"github.com/meepleai/meepleai/pkg/services"
)

// fakeStore is an in-memory Store for registry tests.
type fakeStore struct {
	active       map[string]string // name -> active content
	templates    map[string]*models.PromptTemplate
	activeReads  int
	activateErr  error
	versionCalls []services.CreateVersionRequest
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		active:    map[string]string{},
		templates: map[string]*models.PromptTemplate{},
	}
}

func (f *fakeStore) CreateTemplate(_ context.Context, req services.CreateTemplateRequest) (*models.PromptTemplate, error) {
	tmpl := &models.PromptTemplate{ID: "tmpl-" + req.Name, Name: req.Name, VersionCount: 1, ActiveVersion: 1}
	f.templates[tmpl.ID] = tmpl
	f.active[req.Name] = req.InitialContent
	return tmpl, nil
}

func (f *fakeStore) CreateVersion(_ context.Context, req services.CreateVersionRequest) (*models.PromptVersion, error) {
	f.versionCalls = append(f.versionCalls, req)
	if req.ActivateImmediately {
		if tmpl, ok := f.templates[req.TemplateID]; ok {
			f.active[tmpl.Name] = req.Content
		}
	}
	return &models.PromptVersion{ID: "v-new", TemplateID: req.TemplateID, Content: req.Content}, nil
}

func (f *fakeStore) ActivateVersion(_ context.Context, templateID, versionID, reason, actor string) error {
	return f.activateErr
}

func (f *fakeStore) GetActiveContent(_ context.Context, name string) (string, error) {
	f.activeReads++
	content, ok := f.active[name]
	if !ok {
		return "", services.ErrNotFound
	}
	return content, nil
}

func (f *fakeStore) GetTemplate(_ context.Context, templateID string) (*models.PromptTemplate, error) {
	tmpl, ok := f.templates[templateID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return tmpl, nil
}

func (f *fakeStore) ListTemplates(context.Context, string) ([]models.PromptTemplate, error) {
	return nil, nil
}

func (f *fakeStore) History(context.Context, string) ([]models.PromptVersion, error) {
	return nil, nil
}

func (f *fakeStore) ListAudits(context.Context, string) ([]models.PromptAudit, error) {
	return nil, nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := newFakeStore()
	return NewRegistry(store, rdb, time.Hour), store, mr
}

func TestGetActive_ReadsThroughToStore(t *testing.T) {
	r, store, mr := newTestRegistry(t)
	store.active[QASystemPrompt] = "answer using the rulebook"

	content, err := r.GetActive(context.Background(), QASystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, "answer using the rulebook", content)
	assert.Equal(t, 1, store.activeReads)

	// The read populated the KV layer.
	cached, err := mr.Get("prompt:" + QASystemPrompt + ":active")
	require.NoError(t, err)
	assert.Equal(t, "answer using the rulebook", cached)

	// Subsequent reads come from the warm map.
	_, err = r.GetActive(context.Background(), QASystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, 1, store.activeReads)
}

func TestGetActive_KVFallbackWhenNotWarm(t *testing.T) {
	r, store, mr := newTestRegistry(t)
	require.NoError(t, mr.Set("prompt:explain-system-prompt:active", "kv content"))

	content, err := r.GetActive(context.Background(), ExplainSystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, "kv content", content)
	assert.Equal(t, 0, store.activeReads, "KV hit must not touch the database")
}

func TestGetActive_DegradesToStoreWhenRedisDown(t *testing.T) {
	r, store, mr := newTestRegistry(t)
	store.active[SetupSystemPrompt] = "setup instructions"
	mr.Close()

	content, err := r.GetActive(context.Background(), SetupSystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, "setup instructions", content)
}

func TestGetActive_UnknownName(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	_, err := r.GetActive(context.Background(), "nope")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestWarm_PopulatesCaches(t *testing.T) {
	r, store, _ := newTestRegistry(t)
	store.active[QASystemPrompt] = "qa"
	store.active[ExplainSystemPrompt] = "explain"

	r.Warm(context.Background(), []string{QASystemPrompt, ExplainSystemPrompt, "missing"})

	reads := store.activeReads
	_, err := r.GetActive(context.Background(), QASystemPrompt)
	require.NoError(t, err)
	_, err = r.GetActive(context.Background(), ExplainSystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, reads, store.activeReads, "warmed prompts must not hit the database")
}

func TestCreateVersion_ActivateRefreshesCache(t *testing.T) {
	r, store, _ := newTestRegistry(t)
	ctx := context.Background()

	tmpl, err := r.CreateTemplate(ctx, services.CreateTemplateRequest{
		Name: QASystemPrompt, InitialContent: "v1 content", Actor: "admin",
	})
	require.NoError(t, err)

	content, err := r.GetActive(ctx, QASystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, "v1 content", content)

	_, err = r.CreateVersion(ctx, services.CreateVersionRequest{
		TemplateID: tmpl.ID, Content: "v2 content", ActivateImmediately: true, Actor: "admin",
	})
	require.NoError(t, err)

	content, err = r.GetActive(ctx, QASystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, "v2 content", content)
	require.Len(t, store.versionCalls, 1)
}

func TestActivateVersion_InvalidatesCachedContent(t *testing.T) {
	r, store, mr := newTestRegistry(t)
	ctx := context.Background()

	tmpl, err := r.CreateTemplate(ctx, services.CreateTemplateRequest{
		Name: QASystemPrompt, InitialContent: "v2 content", Actor: "admin",
	})
	require.NoError(t, err)

	// Simulate a rollback: the store's active content changes out from
	// under the caches.
	store.active[QASystemPrompt] = "v1 content"
	require.NoError(t, r.ActivateVersion(ctx, tmpl.ID, "v1", "Rollback", "admin"))

	assert.False(t, mr.Exists("prompt:"+QASystemPrompt+":active"))

	content, err := r.GetActive(ctx, QASystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, "v1 content", content, "reader must observe the rolled-back version")
}
