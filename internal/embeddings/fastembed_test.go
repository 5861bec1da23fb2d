//go:build cgo

package embeddings

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFastEmbedProvider_UnsupportedModel(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "acme/unknown"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFastEmbedModelDimension(t *testing.T) {
	dim, ok := fastEmbedModelDimension("sentence-transformers/all-MiniLM-L6-v2")
	assert.True(t, ok)
	assert.Equal(t, 384, dim)

	dim, ok = fastEmbedModelDimension("fast-bge-base-en-v1.5")
	assert.True(t, ok)
	assert.Equal(t, 768, dim)

	_, ok = fastEmbedModelDimension("text-embedding-3-small")
	assert.False(t, ok, "remote models are not served by fastembed")
}

func TestFastEmbedProvider_Embed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping FastEmbed test in short mode")
	}
	if RuntimeLibraryPath() == "" {
		t.Skip("ONNX runtime not available, skipping FastEmbed test")
	}

	p, err := NewFastEmbedProvider(FastEmbedConfig{
		Model:    "sentence-transformers/all-MiniLM-L6-v2",
		CacheDir: os.Getenv("FASTEMBED_CACHE_DIR"),
	})
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	docs, err := p.EmbedDocuments(ctx, []string{"hello world", "the quick brown fox"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Len(t, docs[0], p.Dimension())

	q, err := p.EmbedQuery(ctx, "greeting")
	require.NoError(t, err)
	assert.Len(t, q, 384)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.EmbedQuery(cancelled, "too late")
	assert.ErrorIs(t, err, context.Canceled)
}
