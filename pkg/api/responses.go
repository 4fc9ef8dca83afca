package api

import (
	"github.com/meepleai/meepleai/pkg/database"
	"github.com/meepleai/meepleai/pkg/indexer"
)

// ErrorResponse is the JSON envelope for every error body.
type ErrorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// IngestResponse acknowledges an accepted document.
type IngestResponse struct {
	DocumentID string `json:"documentId"`
}

// HealthResponse reports component reachability and pool state.
type HealthResponse struct {
	Status      string                `json:"status"`
	Database    database.HealthStatus `json:"database"`
	Redis       ComponentHealth       `json:"redis"`
	VectorStore ComponentHealth       `json:"vectorStore"`
	IndexerPool *indexer.PoolHealth   `json:"indexerPool,omitempty"`
}

// ComponentHealth is the reachability of one dependency.
type ComponentHealth struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// InvalidateCacheResponse reports how many keys were removed.
type InvalidateCacheResponse struct {
	RemovedKeys int `json:"removedKeys"`
}
