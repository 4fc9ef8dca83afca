// Package llm wraps the outbound chat-completion provider behind the two
// operations the engines need: a blocking completion and a token stream.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meepleai/meepleai/pkg/config"
)

// Failure classes. Request handlers never retry; the taxonomy exists so
// the HTTP layer can distinguish 503 from 500.
var (
	ErrTransient = errors.New("transient llm failure")
	ErrPermanent = errors.New("permanent llm failure")
)

// IsTransient reports whether err came from a retryable provider failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Completion is the result of a blocking completion call.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Client calls an OpenAI-compatible chat API.
type Client struct {
	api             *openai.Client
	model           string
	completeTimeout time.Duration
	idleTimeout     time.Duration
}

// NewClient creates an LLM client for the configured provider.
func NewClient(cfg config.LLMConfig) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:             openai.NewClientWithConfig(apiCfg),
		model:           cfg.Model,
		completeTimeout: cfg.CompleteTimeout,
		idleTimeout:     cfg.StreamIdleTimeout,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete runs a blocking chat completion with the given system and user
// prompts.
func (c *Client) Complete(ctx context.Context, system, user string) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.completeTimeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion returned no choices", ErrPermanent)
	}

	return &Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Stream starts a streaming chat completion and returns a token channel
// plus an error channel. Both channels are closed when the stream ends.
// There is no overall deadline; instead each token must arrive within the
// configured idle timeout. Cancelling ctx tears the stream down promptly.
func (c *Client) Stream(ctx context.Context, system, user string) (<-chan string, <-chan error) {
	tokens := make(chan string, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Stream: true,
		})
		if err != nil {
			errs <- classify(err)
			return
		}
		defer func() {
			if err := stream.Close(); err != nil {
				slog.Warn("Failed to close llm stream", "error", err)
			}
		}()

		type recvResult struct {
			resp openai.ChatCompletionStreamResponse
			err  error
		}
		recvCh := make(chan recvResult, 1)

		for {
			go func() {
				resp, err := stream.Recv()
				recvCh <- recvResult{resp, err}
			}()

			select {
			case <-ctx.Done():
				return
			case <-time.After(c.idleTimeout):
				errs <- fmt.Errorf("%w: no token received within %v", ErrTransient, c.idleTimeout)
				return
			case r := <-recvCh:
				if errors.Is(r.err, io.EOF) {
					return
				}
				if r.err != nil {
					errs <- classify(r.err)
					return
				}
				if len(r.resp.Choices) == 0 {
					continue
				}
				token := r.resp.Choices[0].Delta.Content
				if token == "" {
					continue
				}
				select {
				case tokens <- token:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return tokens, errs
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

	return fmt.Errorf("%w: %v", ErrTransient, err)
}
