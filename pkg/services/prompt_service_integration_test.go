package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meepleai/meepleai/pkg/models"
	testdb "github.com/meepleai/meepleai/test/database"
)

func TestPromptService_LifecycleAndRollback(t *testing.T) {
	pool := testdb.NewTestPool(t)
	svc := NewPromptService(pool, 16384)
	ctx := context.Background()

	// Create template with version 1 active.
	tmpl, err := svc.CreateTemplate(ctx, CreateTemplateRequest{
		Name:           "qa-system-prompt",
		Description:    "QA system prompt",
		Category:       "qa",
		InitialContent: "v1 content",
		Actor:          "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tmpl.VersionCount)
	assert.Equal(t, 1, tmpl.ActiveVersion)

	audits, err := svc.ListAudits(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, models.AuditTemplateCreated, audits[0].Action)
	assert.Equal(t, models.AuditVersionCreated, audits[1].Action)

	// A mixed-case name is rejected: names must be lowercase slugs.
	_, err = svc.CreateTemplate(ctx, CreateTemplateRequest{
		Name: "QA-System-Prompt", InitialContent: "x", Actor: "admin",
	})
	assert.Error(t, err)

	content, err := svc.GetActiveContent(ctx, "qa-system-prompt")
	require.NoError(t, err)
	assert.Equal(t, "v1 content", content)

	// Version 2 activated immediately: v2 active, v1 inactive, paired
	// audit rows.
	v2, err := svc.CreateVersion(ctx, CreateVersionRequest{
		TemplateID:          tmpl.ID,
		Content:             "v2 content",
		ActivateImmediately: true,
		Actor:               "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)

	history, err := svc.History(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].IsActive)
	assert.True(t, history[1].IsActive)

	activeCount := 0
	for _, v := range history {
		if v.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount, "exactly one version may be active")

	content, err = svc.GetActiveContent(ctx, "qa-system-prompt")
	require.NoError(t, err)
	assert.Equal(t, "v2 content", content)

	audits, err = svc.ListAudits(ctx, tmpl.ID)
	require.NoError(t, err)
	actions := make([]string, len(audits))
	for i, a := range audits {
		actions[i] = a.Action
	}
	assert.Contains(t, actions, models.AuditVersionActivated)
	assert.Contains(t, actions, models.AuditVersionDeactivated)

	// Roll back to v1.
	require.NoError(t, svc.ActivateVersion(ctx, tmpl.ID, history[0].ID, "Rollback", "admin"))

	history, err = svc.History(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.True(t, history[0].IsActive)
	assert.False(t, history[1].IsActive)

	audits, err = svc.ListAudits(ctx, tmpl.ID)
	require.NoError(t, err)
	var rollbackDetail string
	for _, a := range audits {
		if a.Action == models.AuditVersionActivated && strings.Contains(a.Details, "Rollback") {
			rollbackDetail = a.Details
		}
	}
	assert.Contains(t, rollbackDetail, "Rollback")

	tmpl2, err := svc.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, tmpl2.VersionCount)
	assert.Equal(t, 1, tmpl2.ActiveVersion)
}

func TestPromptService_ContentSizeEnforced(t *testing.T) {
	pool := testdb.NewTestPool(t)
	svc := NewPromptService(pool, 64)
	ctx := context.Background()

	_, err := svc.CreateTemplate(ctx, CreateTemplateRequest{
		Name:           "oversized-prompt",
		InitialContent: strings.Repeat("x", 65),
		Actor:          "admin",
	})
	assert.True(t, IsValidationError(err), "oversized content must be rejected on write")
}

func TestCacheStatsService_CountersAreMonotonic(t *testing.T) {
	pool := testdb.NewTestPool(t)
	svc := NewCacheStatsService(pool)
	ctx := context.Background()

	require.NoError(t, svc.RecordMiss(ctx, "g1", "h1"))
	require.NoError(t, svc.RecordHit(ctx, "g1", "h1"))
	require.NoError(t, svc.RecordHit(ctx, "g1", "h1"))
	require.NoError(t, svc.RecordHit(ctx, "g1", "h2"))
	require.NoError(t, svc.RecordMiss(ctx, "g2", "h3"))

	hits, misses, top, err := svc.Aggregate(ctx, "g1", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, hits)
	assert.EqualValues(t, 1, misses)
	require.NotEmpty(t, top)
	assert.Equal(t, "h1", top[0].QuestionHash, "top questions ordered by hit count")

	hits, misses, _, err = svc.Aggregate(ctx, "", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, hits)
	assert.EqualValues(t, 2, misses)
}

func TestFeedbackService_UpsertAndRetract(t *testing.T) {
	pool := testdb.NewTestPool(t)
	svc := NewFeedbackService(pool)
	ctx := context.Background()

	fb := models.AgentFeedback{
		MessageID: "m1", Endpoint: models.EndpointQA, UserID: "u1",
		GameID: "g1", Outcome: models.FeedbackHelpful,
	}
	require.NoError(t, svc.Record(ctx, fb))

	// Same key flips the outcome instead of inserting a second row.
	fb.Outcome = models.FeedbackNotHelpful
	require.NoError(t, svc.Record(ctx, fb))

	stats, err := svc.Stats(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)
	assert.EqualValues(t, 1, stats.ByOutcome[models.FeedbackNotHelpful])

	// Null outcome retracts the row.
	fb.Outcome = ""
	require.NoError(t, svc.Record(ctx, fb))

	stats, err = svc.Stats(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Total)
}
