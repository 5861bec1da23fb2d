package embeddings

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/transcriptrag/internal/config"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantDim int
		wantErr error
	}{
		{
			name:    "tei with model dimension",
			cfg:     ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-base-en-v1.5"},
			wantDim: 768,
		},
		{
			name:    "tei with explicit dimension",
			cfg:     ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "custom", Dimension: 1024},
			wantDim: 1024,
		},
		{
			name:    "tei without base URL",
			cfg:     ProviderConfig{Provider: "tei", Model: "BAAI/bge-small-en-v1.5"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "openai",
			cfg:     ProviderConfig{Provider: "openai", APIKey: "sk-test", Model: "text-embedding-3-large"},
			wantDim: 3072,
		},
		{
			name:    "openai without key",
			cfg:     ProviderConfig{Provider: "openai"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "unknown provider",
			cfg:     ProviderConfig{Provider: "word2vec"},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg, zap.NewNop())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer p.Close()
			assert.Equal(t, tt.wantDim, p.Dimension())
			_, guarded := p.(*guarded)
			assert.True(t, guarded)
		})
	}
}

func TestNewProvider_LogsInitialization(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p, err := NewProvider(ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-small-en-v1.5"}, zap.New(core))
	require.NoError(t, err)
	defer p.Close()

	entries := logs.FilterMessage("embedding provider initialized").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tei", entries[0].ContextMap()["provider"])
	assert.Equal(t, int64(384), entries[0].ContextMap()["dimension"])
}

func TestNewProvider_TEIEndToEnd(t *testing.T) {
	srv := teiServer(t, 4, http.StatusOK)
	p, err := NewProvider(ProviderConfig{Provider: "tei", BaseURL: srv.URL, Dimension: 4, Timeout: time.Second}, nil)
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)

	down := teiServer(t, 4, http.StatusBadGateway)
	p, err = NewProvider(ProviderConfig{Provider: "tei", BaseURL: down.URL, Dimension: 4}, nil)
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingService)
	assert.True(t, ragerr.Retryable(err))
}

func TestProviderConfigFrom(t *testing.T) {
	cfg := config.Default().Embeddings
	cfg.Provider = "openai"
	cfg.APIKey = config.Secret("sk-live")
	cfg.RequestsPerSecond = 3

	pc := ProviderConfigFrom(cfg)
	assert.Equal(t, "openai", pc.Provider)
	assert.Equal(t, "sk-live", pc.APIKey)
	assert.Equal(t, cfg.Model, pc.Model)
	assert.Equal(t, 384, pc.Dimension)
	assert.Equal(t, 30*time.Second, pc.Timeout)
	assert.InDelta(t, 3.0, pc.RequestsPerSecond, 1e-9)
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"sentence-transformers/all-MiniLM-L6-v2", 384},
		{"BAAI/bge-small-zh-v1.5", 512},
		{"text-embedding-3-large", 3072},
		{"text-embedding-3-small", 1536},
		{"acme/text-embedding-custom", 1536},
		{"nomic-embed-text-base", 768},
		{"e5-large", 1024},
		{"something-else", 384},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDimensionFromModel(tt.model))
		})
	}
}
