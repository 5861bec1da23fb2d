//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned when FastEmbed is not available (requires CGO).
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support, use the tei or openai provider instead)")

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is a stub for non-CGO builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider returns an error when CGO is not available.
func NewFastEmbedProvider(_ FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

// EmbedDocuments returns an error when CGO is not available.
func (p *FastEmbedProvider) EmbedDocuments(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// EmbedQuery returns an error when CGO is not available.
func (p *FastEmbedProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Dimension returns 0 when CGO is not available.
func (p *FastEmbedProvider) Dimension() int {
	return 0
}

// Close is a no-op when CGO is not available.
func (p *FastEmbedProvider) Close() error {
	return nil
}

func fastEmbedModelDimension(model string) (int, bool) {
	switch model {
	case "sentence-transformers/all-MiniLM-L6-v2", "fast-all-MiniLM-L6-v2",
		"BAAI/bge-small-en-v1.5", "BAAI/bge-small-en", "fast-bge-small-en-v1.5", "fast-bge-small-en",
		"BAAI/bge-base-en-v1.5", "BAAI/bge-base-en", "fast-bge-base-en-v1.5", "fast-bge-base-en",
		"BAAI/bge-small-zh-v1.5", "fast-bge-small-zh-v1.5":
		return knownDimensions[model], true
	}
	return 0, false
}
