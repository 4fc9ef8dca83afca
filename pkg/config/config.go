// Package config loads typed server configuration from environment
// variables with production-ready defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the complete server configuration.
type Config struct {
	HTTPPort string
	GinMode  string

	Embedding   EmbeddingConfig
	LLM         LLMConfig
	Chunker     ChunkerConfig
	Indexer     IndexerConfig
	Cache       CacheConfig
	Prompts     PromptsConfig
	VectorStore VectorStoreConfig
	Redis       RedisConfig
}

// EmbeddingConfig configures the outbound embedding client.
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// LLMConfig configures the outbound chat-completion client.
type LLMConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	CompleteTimeout   time.Duration
	StreamIdleTimeout time.Duration
}

// ChunkerConfig controls text windowing.
type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
	CharsPerPage int
}

// IndexerConfig controls the background indexing worker pool.
type IndexerConfig struct {
	MaxWorkers int
	QueueSize  int
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	DefaultTTL time.Duration
	PromptTTL  time.Duration
	OpTimeout  time.Duration
}

// PromptsConfig controls the prompt registry.
type PromptsConfig struct {
	MaxSizeBytes  int
	WarmOnStartup []string
}

// VectorStoreConfig controls the Qdrant adapter.
type VectorStoreConfig struct {
	Addr           string
	CollectionName string
	OpTimeout      time.Duration
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),
		GinMode:  getEnvOrDefault("GIN_MODE", "debug"),
		Embedding: EmbeddingConfig{
			BaseURL:    getEnvOrDefault("OPENAI_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			Model:      getEnvOrDefault("EMBEDDING_MODEL", "openai/text-embedding-3-small"),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),
			Timeout:    getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:           getEnvOrDefault("OPENAI_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:            os.Getenv("OPENAI_API_KEY"),
			Model:             getEnvOrDefault("LLM_MODEL", "anthropic/claude-3.5-sonnet"),
			CompleteTimeout:   getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			StreamIdleTimeout: getEnvDuration("LLM_STREAM_IDLE_TIMEOUT", 30*time.Second),
		},
		Chunker: ChunkerConfig{
			ChunkSize:    getEnvInt("CHUNK_SIZE", 512),
			ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),
			CharsPerPage: getEnvInt("CHARS_PER_PAGE", 3000),
		},
		Indexer: IndexerConfig{
			MaxWorkers: getEnvInt("INDEXER_MAX_WORKERS", 4),
			QueueSize:  getEnvInt("INDEXER_QUEUE_SIZE", 64),
		},
		Cache: CacheConfig{
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 24*time.Hour),
			PromptTTL:  getEnvDuration("CACHE_PROMPT_TTL", time.Hour),
			OpTimeout:  getEnvDuration("CACHE_TIMEOUT", time.Second),
		},
		Prompts: PromptsConfig{
			MaxSizeBytes: getEnvInt("PROMPT_MAX_SIZE_BYTES", 16384),
			WarmOnStartup: getEnvList("PROMPT_WARM_LIST",
				[]string{"qa-system-prompt", "explain-system-prompt", "setup-guide-system-prompt"}),
		},
		VectorStore: VectorStoreConfig{
			Addr:           getEnvOrDefault("QDRANT_ADDR", "localhost:6334"),
			CollectionName: getEnvOrDefault("QDRANT_COLLECTION", "meepleai_documents"),
			OpTimeout:      getEnvDuration("VECTOR_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Chunker.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be at least 1")
	}
	if c.Chunker.ChunkOverlap < 0 {
		return fmt.Errorf("CHUNK_OVERLAP cannot be negative")
	}
	if c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)",
			c.Chunker.ChunkOverlap, c.Chunker.ChunkSize)
	}
	if c.Embedding.Dimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be at least 1")
	}
	if c.Indexer.MaxWorkers < 1 {
		return fmt.Errorf("INDEXER_MAX_WORKERS must be at least 1")
	}
	if c.Prompts.MaxSizeBytes < 1 {
		return fmt.Errorf("PROMPT_MAX_SIZE_BYTES must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
