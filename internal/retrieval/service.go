// Package retrieval ingests sources into the vector store and answers
// questions from it.
//
// Every ingested source produces one row in the metadata collection
// (embedded from its description) and one row per chunk in the transcript
// collection. Chunk rows carry only offsets into the side file written by
// sources.Store, so answers re-read the text from disk.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/chunker"
	"github.com/fyrsmithlabs/transcriptrag/internal/config"
	"github.com/fyrsmithlabs/transcriptrag/internal/llm"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
	"github.com/fyrsmithlabs/transcriptrag/internal/records"
	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore"
)

var tracer = otel.Tracer("transcriptrag.retrieval")

// Config holds the service settings.
type Config struct {
	MetadataCollection   string
	TranscriptCollection string
	Dimension            int
	ChunkSize            int
	ChunkOverlap         int
	EmbedBatchSize       int
	Workers              int
	DefaultK             int
	// MaxDistance drops query results further than this. Zero disables
	// the cut.
	MaxDistance float64
	// ContextTokens is the prompt window of the language model; MaxTokens
	// of it are reserved for the answer.
	ContextTokens int
	MaxTokens     int
}

// ConfigFrom extracts the service settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MetadataCollection:   cfg.Ingest.MetadataCollection,
		TranscriptCollection: cfg.Ingest.TranscriptCollection,
		Dimension:            cfg.Embeddings.Dimension,
		ChunkSize:            cfg.Ingest.ChunkSize,
		ChunkOverlap:         cfg.Ingest.ChunkOverlap,
		EmbedBatchSize:       cfg.Ingest.EmbedBatchSize,
		Workers:              cfg.Ingest.Workers,
		DefaultK:             cfg.Query.DefaultK,
		MaxDistance:          cfg.Query.MaxDistance,
		ContextTokens:        cfg.LLM.ContextTokens,
		MaxTokens:            cfg.LLM.MaxTokens,
	}
}

func (c *Config) applyDefaults() {
	if c.MetadataCollection == "" {
		c.MetadataCollection = "transcript_metadata"
	}
	if c.TranscriptCollection == "" {
		c.TranscriptCollection = "transcript_collection"
	}
	if c.Dimension <= 0 {
		c.Dimension = records.DefaultDimension
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunker.DefaultChunkSize
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.DefaultK <= 0 {
		c.DefaultK = 4
	}
	if c.ContextTokens <= 0 {
		c.ContextTokens = 4096
	}
}

// Service coordinates fetching, chunking, embedding, storage and answering.
// It is safe for concurrent use.
type Service struct {
	cfg       Config
	store     vectorstore.Store
	embedder  vectorstore.Embedder
	side      *sources.Store
	fetcher   sources.Fetcher
	completer llm.Completer
	budget    *llm.Budget
	splitter  *chunker.Splitter
	builder   *records.Builder
	logger    *zap.Logger

	mu      sync.Mutex
	ensured bool
}

// Option configures a Service.
type Option func(*Service)

// WithFetcher sets the fetcher used by IngestIdentifier.
func WithFetcher(f sources.Fetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithCompleter sets the language model used by Ask.
func WithCompleter(c llm.Completer) Option {
	return func(s *Service) { s.completer = c }
}

// WithBudget sets the token counter used to fit excerpts into the prompt.
func WithBudget(b *llm.Budget) Option {
	return func(s *Service) {
		if b != nil {
			s.budget = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service. store, embedder and side are required.
func NewService(cfg Config, store vectorstore.Store, embedder vectorstore.Embedder, side *sources.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("vector store cannot be nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder cannot be nil")
	}
	if side == nil {
		return nil, errors.New("side-file store cannot be nil")
	}
	cfg.applyDefaults()
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.MetadataCollection == cfg.TranscriptCollection {
		return nil, errors.New("metadata and transcript collections must differ")
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		side:     side,
		budget:   llm.EstimateBudget(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.splitter = chunker.NewSplitter(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap))
	s.builder = records.NewBuilder(embedder, records.WithBatchSize(cfg.EmbedBatchSize), records.WithLogger(s.logger))
	return s, nil
}

// Config returns the effective settings.
func (s *Service) Config() Config {
	return s.cfg
}

// EnsureCollections creates the metadata and transcript collections unless
// they already exist with the configured dimension. It runs once per
// Service; later calls return immediately.
//
// An existing collection with a different dimension is reported as
// ErrDimensionMismatch; use RecreateCollections to replace it.
func (s *Service) EnsureCollections(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	if err := s.createCollections(ctx, false); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

// RecreateCollections drops every stored row by replacing both collections.
func (s *Service) RecreateCollections(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createCollections(ctx, true); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

func (s *Service) createCollections(ctx context.Context, replace bool) error {
	const op = "retrieval.ensure_collections"
	for _, c := range []struct {
		name   string
		schema vectorstore.Schema
	}{
		{s.cfg.MetadataCollection, records.MetadataSchema(s.cfg.Dimension)},
		{s.cfg.TranscriptCollection, records.TranscriptSchema(s.cfg.Dimension)},
	} {
		if !replace {
			info, err := s.store.DescribeCollection(ctx, c.name)
			switch {
			case err == nil && info.Schema.Dim() != s.cfg.Dimension:
				return ragerr.New(op, ragerr.ErrDimensionMismatch,
					"collection %s has dimension %d, embedder produces %d", c.name, info.Schema.Dim(), s.cfg.Dimension)
			case err == nil:
				if missing := missingFields(info.Schema, c.schema); len(missing) > 0 {
					return ragerr.New(op, ragerr.ErrSchemaError,
						"collection %s lacks fields %v; recreate it and re-ingest", c.name, missing)
				}
				continue
			case !errors.Is(err, ragerr.ErrUnknownCollection):
				return err
			}
		}
		if err := s.store.CreateCollection(ctx, c.name, c.schema); err != nil {
			return fmt.Errorf("creating collection %s: %w", c.name, err)
		}
		s.logger.Info("collection created",
			zap.String("collection", c.name),
			zap.Int("dimension", s.cfg.Dimension),
			zap.Bool("replaced", replace),
		)
	}
	return nil
}

func missingFields(have, want vectorstore.Schema) []string {
	var missing []string
	for _, f := range want.Fields {
		if _, ok := have.Field(f.Name); !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}
