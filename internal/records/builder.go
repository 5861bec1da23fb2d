// Package records turns chunks and source metadata into vector store
// records that match a collection schema.
package records

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/chunker"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore"
)

// Builder embeds text and assembles records.
type Builder struct {
	embedder  vectorstore.Embedder
	batchSize int
	logger    *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithBatchSize sets how many chunks are sent to the embedder per call.
// Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder returns a Builder that embeds one chunk per call by default.
func NewBuilder(embedder vectorstore.Embedder, opts ...Option) *Builder {
	b := &Builder{embedder: embedder, batchSize: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildChunks returns one record per chunk. Each record carries the source
// id, the chunk offsets, originPath and the chunk embedding; any other
// schema field is filled from the source metadata.
//
// Returns ErrMissingField when the schema lacks a field the builder writes
// or when a required field has no value, and ErrDimensionMismatch when the
// embedder returns a vector of the wrong length for any chunk.
func (b *Builder) BuildChunks(ctx context.Context, chunks []chunker.Chunk, source sources.SourceItem, originPath string, schema vectorstore.Schema) ([]vectorstore.Record, error) {
	const op = "records.build_chunks"

	if err := requireFields(op, schema, FieldID, FieldStart, FieldEnd, FieldTranscriptPath); err != nil {
		return nil, err
	}
	meta := source.Fields()
	if _, ok := meta[FieldID]; !ok {
		return nil, ragerr.New(op, ragerr.ErrMissingField, "source has no %q", FieldID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := b.embed(ctx, op, texts, schema.Dim())
	if err != nil {
		return nil, err
	}

	out := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		values := map[string]any{
			FieldStart:          int64(c.Start),
			FieldEnd:            int64(c.End),
			FieldTranscriptPath: originPath,
			FieldChunkHash:      ChunkHash(c.Text),
		}
		rec, err := fill(op, schema, meta, values, vectors[i])
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}

	b.logger.Debug("chunk records built",
		zap.String("source_id", source.ID),
		zap.Int("chunks", len(out)),
	)
	return out, nil
}

// BuildMetadata returns the metadata record of source. The embedding is
// computed from the description, falling back to the title and then the id
// when the description is empty.
func (b *Builder) BuildMetadata(ctx context.Context, source sources.SourceItem, schema vectorstore.Schema) (vectorstore.Record, error) {
	const op = "records.build_metadata"

	if err := requireFields(op, schema, FieldID); err != nil {
		return nil, err
	}
	text := source.Description
	if text == "" {
		text = source.Title
	}
	if text == "" {
		text = source.ID
	}

	vectors, err := b.embed(ctx, op, []string{text}, schema.Dim())
	if err != nil {
		return nil, err
	}
	return fill(op, schema, source.Fields(), nil, vectors[0])
}

// embed calls the embedder in batches and checks every vector.
func (b *Builder) embed(ctx context.Context, op string, texts []string, dim int) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, ragerr.Wrap(op, ragerr.ErrEmbeddingService, err)
		}
		end := min(start+b.batchSize, len(texts))

		vectors, err := b.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			if ragerr.KindOf(err) != nil {
				return nil, err
			}
			return nil, ragerr.Wrap(op, ragerr.ErrEmbeddingService, err)
		}
		if len(vectors) != end-start {
			return nil, ragerr.New(op, ragerr.ErrEmbeddingService,
				"embedder returned %d vectors for %d texts", len(vectors), end-start)
		}
		for i, v := range vectors {
			if len(v) != dim {
				return nil, ragerr.New(op, ragerr.ErrDimensionMismatch,
					"chunk %d: embedding has dimension %d, collection expects %d", start+i, len(v), dim)
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// fill assigns every schema field. values takes precedence over meta;
// auto-id keys stay unset.
func fill(op string, schema vectorstore.Schema, meta, values map[string]any, vec []float32) (vectorstore.Record, error) {
	rec := make(vectorstore.Record, len(schema.Fields))
	for _, f := range schema.Fields {
		if f.Primary && f.AutoID {
			continue
		}
		if f.Type == vectorstore.FieldFloatVector {
			rec[f.Name] = vec
			continue
		}
		if v, ok := values[f.Name]; ok {
			rec[f.Name] = v
			continue
		}
		if v, ok := meta[f.Name]; ok {
			rec[f.Name] = v
			continue
		}
		if f.Required || f.Primary {
			return nil, ragerr.New(op, ragerr.ErrMissingField, "required field %q has no value", f.Name)
		}
		rec[f.Name] = zeroValue(f.Type)
	}
	return rec, nil
}

func requireFields(op string, schema vectorstore.Schema, names ...string) error {
	if schema.VectorField().Name == "" {
		return ragerr.New(op, ragerr.ErrMissingField, "schema has no embedding field")
	}
	for _, name := range names {
		if _, ok := schema.Field(name); !ok {
			return ragerr.New(op, ragerr.ErrMissingField, "schema has no %q field", name)
		}
	}
	return nil
}

func zeroValue(t vectorstore.FieldType) any {
	switch t {
	case vectorstore.FieldInt64:
		return int64(0)
	case vectorstore.FieldFloat64:
		return 0.0
	case vectorstore.FieldBool:
		return false
	default:
		return ""
	}
}

// ChunkHash fingerprints chunk text so a reader can tell whether the range
// it read back from a side file is still the text that was embedded.
func ChunkHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
