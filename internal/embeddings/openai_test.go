package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openAIEmbeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// openAIServer answers /v1/embeddings with Data in reverse Index order.
func openAIServer(t *testing.T, dim int, seen *openAIEmbeddingRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if seen != nil {
			*seen = req
		}

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			vec[0] = float32(i)
			data = append(data, item{Object: "embedding", Index: i, Embedding: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOpenAIProvider(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())
	assert.Zero(t, p.requestDims)

	p, err = NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", Model: "text-embedding-3-small", Dimension: 384})
	require.NoError(t, err)
	assert.Equal(t, 384, p.Dimension())
	assert.Equal(t, 384, p.requestDims)

	p, err = NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", Model: "text-embedding-ada-002", Dimension: 384})
	require.NoError(t, err)
	assert.Zero(t, p.requestDims, "ada-002 cannot shorten its output")
}

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	var seen openAIEmbeddingRequest
	srv := openAIServer(t, 8, &seen)

	p, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL:   srv.URL + "/v1",
		APIKey:    "sk-test",
		Model:     "text-embedding-3-small",
		Dimension: 8,
	})
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"zero", "one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0], "vectors are returned in input order")
	}
	assert.Equal(t, []string{"zero", "one", "two"}, seen.Input)
	assert.Equal(t, "text-embedding-3-small", seen.Model)
	assert.Equal(t, 8, seen.Dimensions)
}

func TestOpenAIProvider_EmbedQuery(t *testing.T) {
	srv := openAIServer(t, 1536, nil)
	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test"})
	require.NoError(t, err)

	v, err := p.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, v, 1536)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "rate limited")
}
