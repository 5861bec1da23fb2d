// Package llm wraps the language model used to answer questions over
// retrieved transcript excerpts.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/config"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

// Completer turns a prompt into a completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client is a Completer backed by a langchaingo model.
type Client struct {
	model       llms.Model
	name        string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMaxTokens bounds the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithTimeout bounds each Complete call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient wraps an existing langchaingo model.
func NewClient(model llms.Model, name string, opts ...Option) *Client {
	c := &Client{
		model:  model,
		name:   name,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New builds the model selected by cfg.Provider ("openai" or "ollama").
func New(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	httpClient := &http.Client{}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "openai", "":
		if !cfg.APIKey.IsSet() {
			return nil, ragerr.New("llm.new", ragerr.ErrInvalidArgument, "openai api key required (set OPENAI_API_KEY)")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey.Value()),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, ragerr.New("llm.new", ragerr.ErrInvalidArgument, "unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, ragerr.Wrap("llm.new", ragerr.ErrLLMService, err)
	}

	return NewClient(model, cfg.Model,
		WithMaxTokens(cfg.MaxTokens),
		WithTemperature(cfg.Temperature),
		WithTimeout(cfg.Timeout.Duration()),
		WithLogger(logger),
	), nil
}

// Complete sends prompt as a single user message and returns the first
// choice. Failures are ragerr.ErrLLMService, or ragerr.ErrTimeout when the
// deadline passes.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	const op = "llm.complete"
	if prompt == "" {
		return "", ragerr.New(op, ragerr.ErrInvalidArgument, "prompt cannot be empty")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var opts []llms.CallOption
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	opts = append(opts, llms.WithTemperature(c.temperature))

	start := time.Now()
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, opts...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		err = ragerr.Wrap(op, ragerr.ErrLLMService, err)
		c.logger.Warn("completion failed", zap.String("model", c.name), zap.Error(err))
		return "", err
	}

	c.logger.Debug("completion finished",
		zap.String("model", c.name),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_chars", len(prompt)),
	)
	return out, nil
}
