package models

import "time"

// Snippet is a retrieved chunk attached to an answer as evidence.
type Snippet struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Line   int     `json:"line"`
	Score  float64 `json:"score,omitempty"`
}

// QAResponse is the payload of the synchronous QA endpoint and the value
// cached for both QA endpoints.
type QAResponse struct {
	Answer           string    `json:"answer"`
	Snippets         []Snippet `json:"snippets"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	Confidence       float64   `json:"confidence"`
}

// OutlineSection is one section of an explain/setup outline.
type OutlineSection struct {
	Title  string   `json:"title"`
	Points []string `json:"points"`
}

// Outline is the structured result of the explain and setup engines.
type Outline struct {
	MainTopic string           `json:"mainTopic"`
	Sections  []OutlineSection `json:"sections"`
}

// ExplainResponse is the payload of the explain endpoint.
type ExplainResponse struct {
	Outline          Outline   `json:"outline"`
	Snippets         []Snippet `json:"snippets"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	Confidence       float64   `json:"confidence"`
}

// SetupResponse is the payload of the setup-guide endpoint.
type SetupResponse struct {
	Outline          Outline   `json:"outline"`
	Snippets         []Snippet `json:"snippets"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	Confidence       float64   `json:"confidence"`
}

// IndexResult reports a completed (re-)indexing run.
type IndexResult struct {
	Success          bool      `json:"success"`
	VectorDocumentID string    `json:"vectorDocumentId"`
	ChunkCount       int       `json:"chunkCount"`
	TotalCharacters  int       `json:"totalCharacters"`
	IndexedAt        time.Time `json:"indexedAt"`
}

// FeedbackStats aggregates feedback rows for reporting.
type FeedbackStats struct {
	Total      int64                       `json:"total"`
	ByEndpoint map[string]map[string]int64 `json:"byEndpoint"`
	ByOutcome  map[string]int64            `json:"byOutcome"`
}

// CacheStatsReport aggregates response-cache statistics for one game or
// for all games.
type CacheStatsReport struct {
	GameID         string      `json:"gameId,omitempty"`
	Hits           int64       `json:"hits"`
	Misses         int64       `json:"misses"`
	HitRate        float64     `json:"hitRate"`
	TopQuestions   []CacheStat `json:"topQuestions"`
	TotalKeys      int64       `json:"totalKeys"`
	TotalSizeBytes int64       `json:"totalSizeBytes"`
}
