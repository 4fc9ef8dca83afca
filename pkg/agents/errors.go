// Package agents implements the AI engines served over the indexed
// rulebook corpus: synchronous QA, streaming QA, explain, and setup.
package agents

import "errors"

// Engine failure kinds. The HTTP layer maps these onto status codes; the
// streaming engine maps them onto error event codes.
var (
	ErrEmptyQuery      = errors.New("query must not be empty")
	ErrEmptyGameID     = errors.New("game id must not be empty")
	ErrEmbeddingFailed = errors.New("query embedding failed")
	ErrNoResults       = errors.New("no matching rulebook content found")
	ErrLlmFailed       = errors.New("answer generation failed")
)

// Stream error codes, emitted verbatim inside error event payloads.
const (
	CodeEmptyQuery      = "EMPTY_QUERY"
	CodeEmbeddingFailed = "EMBEDDING_FAILED"
	CodeNoResults       = "NO_RESULTS"
	CodeLlmFailed       = "LLM_FAILED"
)
