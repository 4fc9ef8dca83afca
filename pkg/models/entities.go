// Package models defines the shared domain types persisted in PostgreSQL
// and exchanged between the service, engine, and API layers.
package models

import "time"

// Game is a board game that rulebook documents belong to.
type Game struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Document processing statuses.
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

// Document is an uploaded rulebook whose text has been extracted by the
// PDF collaborator. The raw bytes live outside this system; only the
// extracted text and its metadata are stored here.
type Document struct {
	ID               string    `json:"id"`
	GameID           string    `json:"gameId"`
	FileName         string    `json:"fileName"`
	FileSizeBytes    int64     `json:"fileSizeBytes"`
	UploadedBy       string    `json:"uploadedBy"`
	UploadedAt       time.Time `json:"uploadedAt"`
	ProcessingStatus string    `json:"processingStatus"`
	ExtractedText    string    `json:"-"`
	PageCount        int       `json:"pageCount"`
	CharacterCount   int       `json:"characterCount"`
	ExtractionError  string    `json:"extractionError,omitempty"`
}

// VectorDocument tracks the indexing state of a Document in the vector
// store. There is at most one per document; re-indexing reuses the row.
type VectorDocument struct {
	ID                  string     `json:"id"`
	GameID              string     `json:"gameId"`
	DocumentID          string     `json:"documentId"`
	ChunkCount          int        `json:"chunkCount"`
	TotalCharacters     int        `json:"totalCharacters"`
	EmbeddingModel      string     `json:"embeddingModel"`
	EmbeddingDimensions int        `json:"embeddingDimensions"`
	IndexingStatus      string     `json:"indexingStatus"`
	IndexingError       string     `json:"indexingError,omitempty"`
	IndexedAt           *time.Time `json:"indexedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// PromptTemplate is a named family of prompt versions. VersionCount and
// ActiveVersion are denormalized counters maintained by the prompt store.
type PromptTemplate struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category,omitempty"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	VersionCount  int       `json:"versionCount"`
	ActiveVersion int       `json:"activeVersion"`
}

// PromptVersion is an immutable revision of a template's content. At most
// one version per template has IsActive set.
type PromptVersion struct {
	ID            string         `json:"id"`
	TemplateID    string         `json:"templateId"`
	VersionNumber int            `json:"versionNumber"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	IsActive      bool           `json:"isActive"`
	CreatedBy     string         `json:"createdBy"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Prompt audit actions.
const (
	AuditTemplateCreated    = "template_created"
	AuditTemplateUpdated    = "template_updated"
	AuditVersionCreated     = "version_created"
	AuditVersionActivated   = "version_activated"
	AuditVersionDeactivated = "version_deactivated"
	AuditRollback           = "rollback"
)

// PromptAudit is an append-only record of a prompt mutation.
type PromptAudit struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"templateId"`
	VersionID  string    `json:"versionId,omitempty"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CacheStat holds hit/miss counters for one (game, question hash) pair.
// Counters only ever increase.
type CacheStat struct {
	GameID       string     `json:"gameId"`
	QuestionHash string     `json:"questionHash"`
	HitCount     int64      `json:"hitCount"`
	MissCount    int64      `json:"missCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastHitAt    *time.Time `json:"lastHitAt,omitempty"`
}

// AI endpoints recorded in the request log.
const (
	EndpointQA       = "qa"
	EndpointQAStream = "qa_stream"
	EndpointExplain  = "explain"
	EndpointSetup    = "setup"
)

// AIRequestLog records one AI operation, cached or not.
type AIRequestLog struct {
	ID               string    `json:"id"`
	Endpoint         string    `json:"endpoint"`
	GameID           string    `json:"gameId"`
	UserID           string    `json:"userId"`
	Query            string    `json:"query"`
	LatencyMs        int64     `json:"latencyMs"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	Confidence       *float64  `json:"confidence,omitempty"`
	FromCache        bool      `json:"fromCache"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Feedback outcomes.
const (
	FeedbackHelpful    = "helpful"
	FeedbackNotHelpful = "not-helpful"
)

// AgentFeedback is a user's verdict on a single answered message, keyed by
// (message, endpoint, user).
type AgentFeedback struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	Endpoint  string    `json:"endpoint"`
	UserID    string    `json:"userId"`
	GameID    string    `json:"gameId"`
	Outcome   string    `json:"outcome"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Identity is the authenticated caller, resolved by the auth collaborator
// before requests reach the core.
type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}
