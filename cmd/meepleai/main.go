// MeepleAI RAG server - ingests extracted rulebook text and serves
// cached, streamed, and structured AI answers over it.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/meepleai/meepleai/pkg/agents"
	"github.com/meepleai/meepleai/pkg/api"
	"github.com/meepleai/meepleai/pkg/cache"
	"github.com/meepleai/meepleai/pkg/chunker"
	"github.com/meepleai/meepleai/pkg/config"
	"github.com/meepleai/meepleai/pkg/database"
	"github.com/meepleai/meepleai/pkg/embeddings"
	"github.com/meepleai/meepleai/pkg/indexer"
	"github.com/meepleai/meepleai/pkg/llm"
	"github.com/meepleai/meepleai/pkg/prompts"
	"github.com/meepleai/meepleai/pkg/services"
	"github.com/meepleai/meepleai/pkg/vectorstore"
)

func main() {
	envFile := flag.String("env-file", os.Getenv("ENV_FILE"), "Path to an optional .env file")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Printf("Warning: Could not load %s file: %v", *envFile, err)
		} else {
			log.Printf("Loaded environment from %s", *envFile)
		}
	} else if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	slog.Info("Starting MeepleAI RAG server", "http_port", cfg.HTTPPort)

	ctx := context.Background()

	// Relational store.
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL, schema up to date")

	// Redis.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Warn("Error closing redis client", "error", err)
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis unreachable at startup, cache runs degraded", "error", err)
	}

	// Vector store.
	vectors, err := vectorstore.New(cfg.VectorStore.Addr, cfg.VectorStore.CollectionName,
		cfg.Embedding.Dimensions, cfg.VectorStore.OpTimeout)
	if err != nil {
		log.Fatalf("Failed to create vector store client: %v", err)
	}
	defer func() {
		if err := vectors.Close(); err != nil {
			slog.Warn("Error closing vector store client", "error", err)
		}
	}()
	if err := vectors.EnsureCollection(ctx); err != nil {
		log.Fatalf("Failed to ensure vector collection: %v", err)
	}
	slog.Info("Vector collection ready", "collection", cfg.VectorStore.CollectionName)

	// SQL stores.
	pool := dbClient.Pool()
	gameService := services.NewGameService(pool)
	documentService := services.NewDocumentService(pool)
	vectorDocService := services.NewVectorDocumentService(pool)
	promptService := services.NewPromptService(pool, cfg.Prompts.MaxSizeBytes)
	cacheStatsService := services.NewCacheStatsService(pool)
	requestLogService := services.NewRequestLogService(pool)
	feedbackService := services.NewFeedbackService(pool)
	slog.Info("Services initialized")

	// Outbound clients.
	embedClient := embeddings.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	// Response cache and prompt registry.
	responseCache := cache.New(rdb, cacheStatsService, cfg.Cache.DefaultTTL, cfg.Cache.OpTimeout)
	registry := prompts.NewRegistry(promptService, rdb, cfg.Cache.PromptTTL)
	registry.Warm(ctx, cfg.Prompts.WarmOnStartup)

	// Indexing pipeline.
	chk := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap, cfg.Chunker.CharsPerPage)
	ix := indexer.New(documentService, vectorDocService, chk, embedClient, vectors)
	workerPool := indexer.NewWorkerPool(ix, cfg.Indexer.MaxWorkers, cfg.Indexer.QueueSize)

	poolCtx, cancelPool := context.WithCancel(ctx)
	defer cancelPool()
	workerPool.Start(poolCtx)
	defer workerPool.Stop()

	// Engines.
	qaEngine := agents.NewQAEngine(responseCache, registry, embedClient, vectors, llmClient, requestLogService)
	streamEngine := agents.NewStreamEngine(responseCache, registry, embedClient, vectors, llmClient, requestLogService)
	explainEngine := agents.NewExplainEngine(responseCache, registry, embedClient, vectors, llmClient, gameService, requestLogService)

	server := api.NewServer(api.Deps{
		DBClient:   dbClient,
		Redis:      rdb,
		Vectors:    vectors,
		Cache:      responseCache,
		Registry:   registry,
		QA:         qaEngine,
		QAStream:   streamEngine,
		Explain:    explainEngine,
		Indexer:    ix,
		Pool:       workerPool,
		Games:      gameService,
		Documents:  documentService,
		VectorDocs: vectorDocService,
		CacheStats: cacheStatsService,
		RequestLog: requestLogService,
		Feedback:   feedbackService,
	})

	// Serve until interrupted, then drain.
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(":" + cfg.HTTPPort)
	}()
	slog.Info("HTTP server listening", "addr", ":"+cfg.HTTPPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("Server stopped")
}
