// Package embeddings provides the outbound embedding client used to turn
// chunk text and queries into fixed-width vectors.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meepleai/meepleai/pkg/config"
)

// Failure classes. Callers retry only transient failures.
var (
	ErrTransient = errors.New("transient embedding failure")
	ErrPermanent = errors.New("permanent embedding failure")
)

// IsTransient reports whether err is worth retrying (5xx, 429, timeout,
// network-level failures).
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Client calls an OpenAI-compatible embeddings API.
type Client struct {
	api        *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// NewClient creates an embedding client for the configured provider.
func NewClient(cfg config.EmbeddingConfig) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:        openai.NewClientWithConfig(apiCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Dimensions returns the configured vector width.
func (c *Client) Dimensions() int { return c.dimensions }

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts preserving input order and length. An empty
// input yields an empty output without a network call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d",
			ErrPermanent, len(texts), len(resp.Data))
	}

	// The API reports an index per datum; order by it rather than trusting
	// response ordering.
	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// classify maps provider errors onto the transient/permanent taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == 429 {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 429 {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	// Connection-level failures come through as url.Error without a status.
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
