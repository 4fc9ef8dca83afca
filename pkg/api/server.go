// Package api exposes the RAG server over HTTP with gin: document
// ingestion, the AI agent endpoints (including SSE streaming), prompt
// administration, cache operations, and health.
package api

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/meepleai/meepleai/pkg/agents"
	"github.com/meepleai/meepleai/pkg/cache"
	"github.com/meepleai/meepleai/pkg/database"
	"github.com/meepleai/meepleai/pkg/indexer"
	"github.com/meepleai/meepleai/pkg/prompts"
	"github.com/meepleai/meepleai/pkg/services"
	"github.com/meepleai/meepleai/pkg/vectorstore"
)

// maxBodyBytes bounds request bodies. Extracted rulebook text dominates
// ingest payloads, so the ceiling is generous but finite.
const maxBodyBytes = 8 << 20

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	dbClient   *database.Client
	rdb        *redis.Client
	vectors    *vectorstore.Store
	cache      *cache.ResponseCache
	registry   *prompts.Registry
	qa         *agents.QAEngine
	qaStream   *agents.StreamEngine
	explain    *agents.ExplainEngine
	indexer    *indexer.Indexer
	pool       *indexer.WorkerPool
	games      *services.GameService
	documents  *services.DocumentService
	vectorDocs *services.VectorDocumentService
	cacheStats *services.CacheStatsService
	requestLog *services.RequestLogService
	feedback   *services.FeedbackService
}

// Deps bundles everything the server serves.
type Deps struct {
	DBClient   *database.Client
	Redis      *redis.Client
	Vectors    *vectorstore.Store
	Cache      *cache.ResponseCache
	Registry   *prompts.Registry
	QA         *agents.QAEngine
	QAStream   *agents.StreamEngine
	Explain    *agents.ExplainEngine
	Indexer    *indexer.Indexer
	Pool       *indexer.WorkerPool
	Games      *services.GameService
	Documents  *services.DocumentService
	VectorDocs *services.VectorDocumentService
	CacheStats *services.CacheStatsService
	RequestLog *services.RequestLogService
	Feedback   *services.FeedbackService
}

// NewServer creates the API server and registers all routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		engine:     gin.New(),
		dbClient:   deps.DBClient,
		rdb:        deps.Redis,
		vectors:    deps.Vectors,
		cache:      deps.Cache,
		registry:   deps.Registry,
		qa:         deps.QA,
		qaStream:   deps.QAStream,
		explain:    deps.Explain,
		indexer:    deps.Indexer,
		pool:       deps.Pool,
		games:      deps.Games,
		documents:  deps.Documents,
		vectorDocs: deps.VectorDocs,
		cacheStats: deps.CacheStats,
		requestLog: deps.RequestLog,
		feedback:   deps.Feedback,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(correlationMiddleware())
	s.engine.Use(securityHeaders())
	s.engine.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	})

	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.Use(identityMiddleware())

	// Game catalog.
	v1.GET("/games", s.listGamesHandler)
	v1.POST("/games", requireRole("editor"), s.createGameHandler)

	// Ingestion (write path).
	ingest := v1.Group("/ingest", requireRole("editor"))
	ingest.POST("/pdf", s.ingestPDFHandler)
	ingest.POST("/pdf/:pdfId/index", s.indexPDFHandler)
	ingest.GET("/documents", s.listDocumentsHandler)
	ingest.DELETE("/documents/:documentId", s.deleteDocumentHandler)

	// AI agents (read path).
	agentsGroup := v1.Group("/agents")
	agentsGroup.POST("/qa", s.qaHandler)
	agentsGroup.POST("/qa/stream", s.qaStreamHandler)
	agentsGroup.POST("/explain", s.explainHandler)
	agentsGroup.POST("/feedback", s.feedbackHandler)
	agentsGroup.GET("/feedback/stats", s.feedbackStatsHandler)

	v1.POST("/setup/generate", s.setupHandler)

	// Prompt administration.
	promptsGroup := v1.Group("/prompts", requireRole("admin"))
	promptsGroup.GET("", s.listTemplatesHandler)
	promptsGroup.POST("", s.createTemplateHandler)
	promptsGroup.GET("/:templateId", s.getTemplateHandler)
	promptsGroup.GET("/:templateId/versions", s.historyHandler)
	promptsGroup.POST("/:templateId/versions", s.createVersionHandler)
	promptsGroup.PUT("/:templateId/activate", s.activateVersionHandler)
	promptsGroup.GET("/:templateId/audits", s.auditsHandler)

	// Cache operations.
	admin := v1.Group("/admin", requireRole("admin"))
	admin.GET("/cache/stats", s.cacheStatsHandler)
	admin.POST("/cache/invalidate", s.invalidateCacheHandler)
	admin.GET("/requests", s.requestLogsHandler)
}

// Start runs the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener, such as one bound
// to a random port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
