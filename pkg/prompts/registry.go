// Package prompts resolves named prompt templates to their active version
// content with a warmed in-memory map and a Redis cache-through, layered
// over the transactional prompt store.
package prompts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meepleai/meepleai/pkg/models"
	"github.com/meepleai/meepleai/pkg/services"
)

// Well-known prompt names resolved by the engines.
const (
	QASystemPrompt      = "qa-system-prompt"
	ExplainSystemPrompt = "explain-system-prompt"
	SetupSystemPrompt   = "setup-guide-system-prompt"
)

// Store is the transactional persistence the registry sits on.
type Store interface {
	CreateTemplate(ctx context.Context, req services.CreateTemplateRequest) (*models.PromptTemplate, error)
	CreateVersion(ctx context.Context, req services.CreateVersionRequest) (*models.PromptVersion, error)
	ActivateVersion(ctx context.Context, templateID, versionID, reason, actor string) error
	GetActiveContent(ctx context.Context, name string) (string, error)
	GetTemplate(ctx context.Context, templateID string) (*models.PromptTemplate, error)
	ListTemplates(ctx context.Context, category string) ([]models.PromptTemplate, error)
	History(ctx context.Context, templateID string) ([]models.PromptVersion, error)
	ListAudits(ctx context.Context, templateID string) ([]models.PromptAudit, error)
}

// Registry is the read-optimized facade over the prompt store. Reads
// consult the warm map, then Redis, then the database; cache failures
// degrade to a database read.
type Registry struct {
	store     Store
	rdb       *redis.Client // nil disables the KV layer
	promptTTL time.Duration

	mu   sync.RWMutex
	warm map[string]string
}

// NewRegistry creates a Registry. rdb may be nil.
func NewRegistry(store Store, rdb *redis.Client, promptTTL time.Duration) *Registry {
	if promptTTL <= 0 {
		promptTTL = time.Hour
	}
	return &Registry{
		store:     store,
		rdb:       rdb,
		promptTTL: promptTTL,
		warm:      make(map[string]string),
	}
}

func kvKey(name string) string {
	return "prompt:" + name + ":active"
}

// GetActive returns the content of the template's currently active
// version.
func (r *Registry) GetActive(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	content, ok := r.warm[name]
	r.mu.RUnlock()
	if ok {
		return content, nil
	}

	if r.rdb != nil {
		cached, err := r.rdb.Get(ctx, kvKey(name)).Result()
		if err == nil {
			return cached, nil
		}
		if err != redis.Nil {
			slog.Warn("Prompt KV read failed, falling back to database", "name", name, "error", err)
		}
	}

	content, err := r.store.GetActiveContent(ctx, name)
	if err != nil {
		return "", err
	}
	r.cacheActive(ctx, name, content)
	return content, nil
}

// Warm eagerly resolves the given prompt names into the warm map and the
// KV cache. Failures are logged and skipped; warming is never fatal.
func (r *Registry) Warm(ctx context.Context, names []string) {
	for _, name := range names {
		content, err := r.store.GetActiveContent(ctx, name)
		if err != nil {
			slog.Warn("Prompt warm-up skipped", "name", name, "error", err)
			continue
		}
		r.cacheActive(ctx, name, content)
		slog.Info("Prompt warmed", "name", name, "bytes", len(content))
	}
}

// CreateTemplate creates a template with its first (active) version and
// seeds the caches with the initial content.
func (r *Registry) CreateTemplate(ctx context.Context, req services.CreateTemplateRequest) (*models.PromptTemplate, error) {
	tmpl, err := r.store.CreateTemplate(ctx, req)
	if err != nil {
		return nil, err
	}
	r.cacheActive(ctx, tmpl.Name, req.InitialContent)
	return tmpl, nil
}

// CreateVersion appends a version; when it activates immediately the
// cached active content is replaced.
func (r *Registry) CreateVersion(ctx context.Context, req services.CreateVersionRequest) (*models.PromptVersion, error) {
	version, err := r.store.CreateVersion(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.ActivateImmediately {
		r.refreshAfterActivation(ctx, req.TemplateID, req.Content)
	}
	return version, nil
}

// ActivateVersion flips the active version and invalidates the cached
// content so readers pick up the newly activated version.
func (r *Registry) ActivateVersion(ctx context.Context, templateID, versionID, reason, actor string) error {
	if err := r.store.ActivateVersion(ctx, templateID, versionID, reason, actor); err != nil {
		return err
	}
	r.refreshAfterActivation(ctx, templateID, "")
	return nil
}

// GetTemplate returns a template by id.
func (r *Registry) GetTemplate(ctx context.Context, templateID string) (*models.PromptTemplate, error) {
	return r.store.GetTemplate(ctx, templateID)
}

// ListTemplates returns templates, optionally filtered by category.
func (r *Registry) ListTemplates(ctx context.Context, category string) ([]models.PromptTemplate, error) {
	return r.store.ListTemplates(ctx, category)
}

// History returns a template's versions, oldest first.
func (r *Registry) History(ctx context.Context, templateID string) ([]models.PromptVersion, error) {
	return r.store.History(ctx, templateID)
}

// Audits returns a template's audit trail, oldest first.
func (r *Registry) Audits(ctx context.Context, templateID string) ([]models.PromptAudit, error) {
	return r.store.ListAudits(ctx, templateID)
}

// refreshAfterActivation drops (or replaces) the cached content for the
// template's name. The activation itself already committed; cache updates
// here are best-effort and may briefly race concurrent readers.
func (r *Registry) refreshAfterActivation(ctx context.Context, templateID, newContent string) {
	tmpl, err := r.store.GetTemplate(ctx, templateID)
	if err != nil {
		slog.Warn("Prompt cache refresh skipped, template lookup failed",
			"template_id", templateID, "error", err)
		return
	}

	if newContent != "" {
		r.cacheActive(ctx, tmpl.Name, newContent)
		return
	}

	r.mu.Lock()
	delete(r.warm, tmpl.Name)
	r.mu.Unlock()
	if r.rdb != nil {
		if err := r.rdb.Del(ctx, kvKey(tmpl.Name)).Err(); err != nil {
			slog.Warn("Prompt KV invalidation failed", "name", tmpl.Name, "error", err)
		}
	}
}

func (r *Registry) cacheActive(ctx context.Context, name, content string) {
	r.mu.Lock()
	r.warm[name] = content
	r.mu.Unlock()

	if r.rdb != nil {
		if err := r.rdb.Set(ctx, kvKey(name), content, r.promptTTL).Err(); err != nil {
			slog.Warn("Prompt KV write failed", "name", name, "error", err)
		}
	}
}
