package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meepleai/meepleai/pkg/models"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// CreateTemplateRequest creates a template together with its version 1.
type CreateTemplateRequest struct {
	Name           string
	Description    string
	Category       string
	InitialContent string
	Actor          string
}

// CreateVersionRequest appends a version to an existing template.
type CreateVersionRequest struct {
	TemplateID          string
	Content             string
	Metadata            map[string]any
	ActivateImmediately bool
	Actor               string
}

// PromptService is the transactional store behind the prompt registry.
// Every mutation writes its audit records in the same transaction, and
// activation takes a row lock on the template so the exactly-one-active
// invariant holds under concurrent writers.
type PromptService struct {
	pool    *pgxpool.Pool
	maxSize int
}

// NewPromptService creates a PromptService enforcing the given maximum
// content size in bytes.
func NewPromptService(pool *pgxpool.Pool, maxSize int) *PromptService {
	return &PromptService{pool: pool, maxSize: maxSize}
}

// CreateTemplate creates a template plus version 1 (active) atomically and
// writes template_created and version_created audit records.
func (s *PromptService) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*models.PromptTemplate, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewValidationError("name", "required")
	}
	if !slugPattern.MatchString(name) {
		return nil, NewValidationError("name", "must be a lowercase slug")
	}
	if err := s.checkContent(req.InitialContent); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tmpl := &models.PromptTemplate{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   req.Description,
		Category:      req.Category,
		CreatedBy:     req.Actor,
		CreatedAt:     now,
		VersionCount:  1,
		ActiveVersion: 1,
	}
	versionID := uuid.New().String()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO prompt_templates
				(template_id, name, description, category, created_by, created_at, version_count, active_version)
			VALUES ($1, $2, $3, $4, $5, $6, 1, 1)`,
			tmpl.ID, tmpl.Name, tmpl.Description, tmpl.Category, tmpl.CreatedBy, tmpl.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to insert template: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO prompt_versions
				(version_id, template_id, version_number, content, is_active, created_by, created_at)
			VALUES ($1, $2, 1, $3, TRUE, $4, $5)`,
			versionID, tmpl.ID, req.InitialContent, req.Actor, now)
		if err != nil {
			return fmt.Errorf("failed to insert version 1: %w", err)
		}

		if err := insertAudit(ctx, tx, tmpl.ID, "", models.AuditTemplateCreated, req.Actor, ""); err != nil {
			return err
		}
		return insertAudit(ctx, tx, tmpl.ID, versionID, models.AuditVersionCreated, req.Actor, "version 1")
	})
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

// CreateVersion appends version N+1. With ActivateImmediately the new
// version becomes active, the prior active version is deactivated, and
// paired audit records are written, all in one transaction.
func (s *PromptService) CreateVersion(ctx context.Context, req CreateVersionRequest) (*models.PromptVersion, error) {
	if err := s.checkContent(req.Content); err != nil {
		return nil, err
	}

	version := &models.PromptVersion{
		ID:         uuid.New().String(),
		TemplateID: req.TemplateID,
		Content:    req.Content,
		Metadata:   req.Metadata,
		IsActive:   req.ActivateImmediately,
		CreatedBy:  req.Actor,
		CreatedAt:  time.Now().UTC(),
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var versionCount, activeVersion int
		err := tx.QueryRow(ctx, `
			SELECT version_count, active_version FROM prompt_templates
			WHERE template_id = $1 FOR UPDATE`, req.TemplateID).
			Scan(&versionCount, &activeVersion)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock template: %w", err)
		}

		version.VersionNumber = versionCount + 1

		var metadata []byte
		if req.Metadata != nil {
			if metadata, err = json.Marshal(req.Metadata); err != nil {
				return NewValidationError("metadata", "not serializable")
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO prompt_versions
				(version_id, template_id, version_number, content, metadata, is_active, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)`,
			version.ID, version.TemplateID, version.VersionNumber, version.Content,
			metadata, version.CreatedBy, version.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert version: %w", err)
		}

		if err := insertAudit(ctx, tx, req.TemplateID, version.ID, models.AuditVersionCreated,
			req.Actor, fmt.Sprintf("version %d", version.VersionNumber)); err != nil {
			return err
		}

		newActive := activeVersion
		if req.ActivateImmediately {
			if err := switchActive(ctx, tx, req.TemplateID, version.ID, req.Actor, ""); err != nil {
				return err
			}
			newActive = version.VersionNumber
		}

		_, err = tx.Exec(ctx, `
			UPDATE prompt_templates SET version_count = $2, active_version = $3
			WHERE template_id = $1`,
			req.TemplateID, version.VersionNumber, newActive)
		if err != nil {
			return fmt.Errorf("failed to update template counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// ActivateVersion atomically deactivates the current active version and
// activates the target one, writing both audit records. A non-empty
// reason is recorded as a rollback detail.
func (s *PromptService) ActivateVersion(ctx context.Context, templateID, versionID, reason, actor string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var versionNumber int
		err := tx.QueryRow(ctx, `
			SELECT pt.version_count, pv.version_number
			FROM prompt_templates pt
			JOIN prompt_versions pv ON pv.template_id = pt.template_id
			WHERE pt.template_id = $1 AND pv.version_id = $2
			FOR UPDATE OF pt`, templateID, versionID).
			Scan(new(int), &versionNumber)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock template: %w", err)
		}

		detail := ""
		if reason != "" {
			detail = "Rollback: " + reason
		}
		if err := switchActive(ctx, tx, templateID, versionID, actor, detail); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE prompt_templates SET active_version = $2 WHERE template_id = $1`,
			templateID, versionNumber)
		if err != nil {
			return fmt.Errorf("failed to update template counters: %w", err)
		}
		return nil
	})
}

// switchActive flips the active flag from the current version (if any) to
// the target version inside the caller's transaction, emitting paired
// audit records.
func switchActive(ctx context.Context, tx pgx.Tx, templateID, versionID, actor, detail string) error {
	var priorID *string
	err := tx.QueryRow(ctx, `
		UPDATE prompt_versions SET is_active = FALSE
		WHERE template_id = $1 AND is_active AND version_id <> $2
		RETURNING version_id`, templateID, versionID).Scan(&priorID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to deactivate current version: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE prompt_versions SET is_active = TRUE
		WHERE template_id = $1 AND version_id = $2`, templateID, versionID)
	if err != nil {
		return fmt.Errorf("failed to activate version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := insertAudit(ctx, tx, templateID, versionID, models.AuditVersionActivated, actor, detail); err != nil {
		return err
	}
	if priorID != nil {
		return insertAudit(ctx, tx, templateID, *priorID, models.AuditVersionDeactivated, actor, "")
	}
	return nil
}

func insertAudit(ctx context.Context, tx pgx.Tx, templateID, versionID, action, actor, details string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO prompt_audits (audit_id, template_id, version_id, action, actor, details, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7)`,
		uuid.New().String(), templateID, versionID, action, actor, details, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

const templateColumns = `template_id, name, description, category, created_by, created_at,
	version_count, active_version`

func scanTemplate(row pgx.Row) (*models.PromptTemplate, error) {
	var t models.PromptTemplate
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.CreatedBy, &t.CreatedAt,
		&t.VersionCount, &t.ActiveVersion)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTemplate fetches a template by id.
func (s *PromptService) GetTemplate(ctx context.Context, templateID string) (*models.PromptTemplate, error) {
	t, err := scanTemplate(s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM prompt_templates WHERE template_id = $1`, templateID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// ListTemplates returns templates, optionally filtered by category.
func (s *PromptService) ListTemplates(ctx context.Context, category string) ([]models.PromptTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM prompt_templates`
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []models.PromptTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// History returns all versions of a template, oldest first.
func (s *PromptService) History(ctx context.Context, templateID string) ([]models.PromptVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT version_id, template_id, version_number, content, metadata, is_active, created_by, created_at
		FROM prompt_versions WHERE template_id = $1 ORDER BY version_number`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load version history: %w", err)
	}
	defer rows.Close()

	var out []models.PromptVersion
	for rows.Next() {
		var v models.PromptVersion
		var metadata []byte
		if err := rows.Scan(&v.ID, &v.TemplateID, &v.VersionNumber, &v.Content, &metadata,
			&v.IsActive, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &v.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode version metadata: %w", err)
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListAudits returns a template's audit trail, oldest first.
func (s *PromptService) ListAudits(ctx context.Context, templateID string) ([]models.PromptAudit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT audit_id, template_id, COALESCE(version_id, ''), action, actor, COALESCE(details, ''), created_at
		FROM prompt_audits WHERE template_id = $1 ORDER BY created_at, audit_id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audits: %w", err)
	}
	defer rows.Close()

	var out []models.PromptAudit
	for rows.Next() {
		var a models.PromptAudit
		if err := rows.Scan(&a.ID, &a.TemplateID, &a.VersionID, &a.Action, &a.Actor,
			&a.Details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetActiveContent resolves the active version's content for a template
// name (case-insensitive), the DB leg of the registry's read path.
func (s *PromptService) GetActiveContent(ctx context.Context, name string) (string, error) {
	var content string
	err := s.pool.QueryRow(ctx, `
		SELECT pv.content
		FROM prompt_templates pt
		JOIN prompt_versions pv ON pv.template_id = pt.template_id AND pv.is_active
		WHERE LOWER(pt.name) = LOWER($1)`, name).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve active prompt: %w", err)
	}
	return content, nil
}

func (s *PromptService) checkContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return NewValidationError("content", "required")
	}
	if len(content) > s.maxSize {
		return NewValidationError("content",
			fmt.Sprintf("exceeds maximum size of %d bytes", s.maxSize))
	}
	return nil
}
