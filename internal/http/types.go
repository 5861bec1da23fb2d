package http

import (
	"github.com/fyrsmithlabs/transcriptrag/internal/retrieval"
	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status      string   `json:"status"`
	Version     string   `json:"version,omitempty"`
	Collections []string `json:"collections,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// IngestRequest is the request body for POST /api/v1/ingest.
type IngestRequest struct {
	Identifiers []string `json:"identifiers"`
}

// IngestResult is one source of an IngestResponse.
type IngestResult struct {
	retrieval.IngestReport
	Errors []string `json:"errors,omitempty"`
}

// IngestResponse is the response body for POST /api/v1/ingest.
type IngestResponse struct {
	RunID     string         `json:"run_id"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []IngestResult `json:"results"`
}

// QueryRequest is the request body for POST /api/v1/query. A zero
// MaxDistance uses the configured threshold.
type QueryRequest struct {
	Query       string  `json:"query"`
	K           int     `json:"k"`
	MaxDistance float64 `json:"max_distance"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Snippets []retrieval.AnswerSnippet `json:"snippets"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Query  string `json:"query"`
	K      int    `json:"k"`
	Filter string `json:"filter"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Hits []retrieval.MetadataHit `json:"hits"`
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

// SourcesResponse is the response body for GET /api/v1/sources.
type SourcesResponse struct {
	Sources []sources.SourceItem `json:"sources"`
}

// CollectionsResponse is the response body for GET /api/v1/collections.
type CollectionsResponse struct {
	Collections []string `json:"collections"`
}

// RecordsResponse is the response body for
// GET /api/v1/collections/:name/records. Vectors are omitted.
type RecordsResponse struct {
	Records []vectorstore.Record `json:"records"`
}
