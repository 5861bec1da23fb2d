package records

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/transcriptrag/internal/chunker"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore"
)

// stubEmbedder returns vectors of dim, or of dims[i] for the i-th text it
// sees when dims is set.
type stubEmbedder struct {
	dim   int
	dims  []int
	err   error
	mu    sync.Mutex
	calls [][]string
	seen  int
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, texts)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		dim := s.dim
		if s.seen < len(s.dims) {
			dim = s.dims[s.seen]
		}
		s.seen++
		v := make([]float32, dim)
		if dim > 0 {
			v[0] = float32(len(text))
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func testItem() sources.SourceItem {
	return sources.SourceItem{
		ID:          "vid123",
		URI:         "https://www.youtube.com/watch?v=vid123",
		SourceType:  sources.SourceVideo,
		Title:       "Apples",
		Description: "red apples are sweet",
		ViewCount:   1500,
		LikeCount:   20,
	}
}

func chunksOf(t *testing.T, text string, size, overlap int) []chunker.Chunk {
	t.Helper()
	seq, err := chunker.Split(text, size, overlap)
	require.NoError(t, err)
	return chunker.Collect(seq)
}

func TestBuildChunks(t *testing.T) {
	emb := &stubEmbedder{dim: 4}
	b := NewBuilder(emb)
	chunks := chunksOf(t, strings.Repeat("A", 50), 20, 5)

	recs, err := b.BuildChunks(context.Background(), chunks, testItem(), "transcripts/Apples.txt", TranscriptSchema(4))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Len(t, emb.calls, 3, "one embedder call per chunk by default")

	wantOffsets := [][2]int64{{0, 20}, {15, 35}, {30, 50}}
	for i, rec := range recs {
		assert.Equal(t, "vid123", rec[FieldID])
		assert.Equal(t, wantOffsets[i][0], rec[FieldStart])
		assert.Equal(t, wantOffsets[i][1], rec[FieldEnd])
		assert.Equal(t, "transcripts/Apples.txt", rec[FieldTranscriptPath])
		assert.Equal(t, ChunkHash(chunks[i].Text), rec[FieldChunkHash])
		assert.Len(t, rec[FieldEmbeddings], 4)
		assert.NotContains(t, rec, FieldPK, "auto ids are assigned by the store")
	}
}

func TestChunkHash(t *testing.T) {
	assert.Len(t, ChunkHash("apples"), 16)
	assert.Equal(t, ChunkHash("apples"), ChunkHash("apples"))
	assert.NotEqual(t, ChunkHash("apples"), ChunkHash("apples "))
	assert.NotEqual(t, ChunkHash(""), ChunkHash("a"))
}

func TestBuildChunks_Batching(t *testing.T) {
	emb := &stubEmbedder{dim: 2}
	b := NewBuilder(emb, WithBatchSize(2))
	chunks := chunksOf(t, strings.Repeat("x", 50), 20, 5)

	_, err := b.BuildChunks(context.Background(), chunks, testItem(), "p", TranscriptSchema(2))
	require.NoError(t, err)
	require.Len(t, emb.calls, 2)
	assert.Len(t, emb.calls[0], 2)
	assert.Len(t, emb.calls[1], 1)
}

func TestBuildChunks_DimensionCheckedPerChunk(t *testing.T) {
	tests := []struct {
		name string
		dims []int
	}{
		{"first chunk", []int{3, 4, 4}},
		{"middle chunk", []int{4, 5, 4}},
		{"last chunk", []int{4, 4, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(&stubEmbedder{dim: 4, dims: tt.dims})
			chunks := chunksOf(t, strings.Repeat("A", 50), 20, 5)

			_, err := b.BuildChunks(context.Background(), chunks, testItem(), "p", TranscriptSchema(4))
			assert.ErrorIs(t, err, ragerr.ErrDimensionMismatch)
		})
	}
}

func TestBuildChunks_MissingFields(t *testing.T) {
	ctx := context.Background()
	chunks := chunksOf(t, "hello world", 5, 1)
	b := NewBuilder(&stubEmbedder{dim: 4})

	for _, drop := range []string{FieldID, FieldStart, FieldEnd, FieldTranscriptPath, FieldEmbeddings} {
		t.Run("schema without "+drop, func(t *testing.T) {
			schema := TranscriptSchema(4)
			var fields []vectorstore.Field
			for _, f := range schema.Fields {
				if f.Name != drop {
					fields = append(fields, f)
				}
			}
			schema.Fields = fields

			_, err := b.BuildChunks(ctx, chunks, testItem(), "p", schema)
			assert.ErrorIs(t, err, ragerr.ErrMissingField)
		})
	}

	t.Run("source without id", func(t *testing.T) {
		item := testItem()
		item.ID = ""
		_, err := b.BuildChunks(ctx, chunks, item, "p", TranscriptSchema(4))
		assert.ErrorIs(t, err, ragerr.ErrMissingField)
	})

	t.Run("required denormalized field", func(t *testing.T) {
		schema := TranscriptSchema(4)
		schema.Fields = append(schema.Fields, vectorstore.Field{Name: "publish_date", Type: vectorstore.FieldString, Required: true})
		_, err := b.BuildChunks(ctx, chunks, testItem(), "p", schema)
		assert.ErrorIs(t, err, ragerr.ErrMissingField)
	})
}

func TestBuildChunks_DenormalizedFields(t *testing.T) {
	schema := TranscriptSchema(4)
	schema.Fields = append(schema.Fields,
		vectorstore.Field{Name: "title", Type: vectorstore.FieldString},
		vectorstore.Field{Name: "view_count", Type: vectorstore.FieldInt64},
		vectorstore.Field{Name: "publish_date", Type: vectorstore.FieldString},
		vectorstore.Field{Name: "rating", Type: vectorstore.FieldFloat64},
		vectorstore.Field{Name: "featured", Type: vectorstore.FieldBool},
	)

	recs, err := NewBuilder(&stubEmbedder{dim: 4}).BuildChunks(context.Background(),
		chunksOf(t, "short", 10, 0), testItem(), "p", schema)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, "Apples", recs[0]["title"])
	assert.Equal(t, int64(1500), recs[0]["view_count"])
	assert.Equal(t, "", recs[0]["publish_date"])
	assert.Equal(t, 0.0, recs[0]["rating"])
	assert.Equal(t, false, recs[0]["featured"])
}

func TestBuildChunks_EmbedderErrors(t *testing.T) {
	chunks := chunksOf(t, "hello", 10, 0)

	_, err := NewBuilder(&stubEmbedder{err: errors.New("connection refused")}).
		BuildChunks(context.Background(), chunks, testItem(), "p", TranscriptSchema(4))
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingService)

	timeout := ragerr.Wrap("embeddings.embed", ragerr.ErrTimeout, context.DeadlineExceeded)
	_, err = NewBuilder(&stubEmbedder{err: timeout}).
		BuildChunks(context.Background(), chunks, testItem(), "p", TranscriptSchema(4))
	assert.ErrorIs(t, err, ragerr.ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewBuilder(&stubEmbedder{dim: 4}).BuildChunks(ctx, chunks, testItem(), "p", TranscriptSchema(4))
	assert.Error(t, err)
}

func TestBuildChunks_Empty(t *testing.T) {
	emb := &stubEmbedder{dim: 4}
	recs, err := NewBuilder(emb).BuildChunks(context.Background(), nil, testItem(), "p", TranscriptSchema(4))
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, emb.calls)
}

func TestBuildMetadata(t *testing.T) {
	emb := &stubEmbedder{dim: 4}
	item := testItem()
	item.DislikeCount = 3

	rec, err := NewBuilder(emb).BuildMetadata(context.Background(), item, MetadataSchema(4))
	require.NoError(t, err)

	require.Len(t, emb.calls, 1)
	assert.Equal(t, []string{"red apples are sweet"}, emb.calls[0])

	assert.Equal(t, "vid123", rec["id"])
	assert.Equal(t, "Apples", rec["title"])
	assert.Equal(t, "video", rec["source_type"])
	assert.Equal(t, "", rec["publish_date"])
	assert.Equal(t, int64(1500), rec["view_count"])
	assert.Equal(t, int64(20), rec["like_count"])
	assert.Equal(t, int64(3), rec["dislike_count"], "mapped independently of like_count")
	assert.Equal(t, int64(0), rec["comment_count"])
	assert.Len(t, rec[FieldEmbeddings], 4)
	assert.NotContains(t, rec, FieldPK)

	// Every non-auto field is present, so the store accepts the record.
	assert.Len(t, rec, len(MetadataSchema(4).Fields)-1)
}

func TestBuildMetadata_EmbeddingTextFallback(t *testing.T) {
	emb := &stubEmbedder{dim: 4}
	b := NewBuilder(emb)

	item := testItem()
	item.Description = ""
	_, err := b.BuildMetadata(context.Background(), item, MetadataSchema(4))
	require.NoError(t, err)

	item.Title = ""
	_, err = b.BuildMetadata(context.Background(), item, MetadataSchema(4))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"Apples"}, {"vid123"}}, emb.calls)
}

func TestBuildMetadata_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewBuilder(&stubEmbedder{dim: 3}).BuildMetadata(ctx, testItem(), MetadataSchema(4))
	assert.ErrorIs(t, err, ragerr.ErrDimensionMismatch)

	item := testItem()
	item.ID = ""
	_, err = NewBuilder(&stubEmbedder{dim: 4}).BuildMetadata(ctx, item, MetadataSchema(4))
	assert.ErrorIs(t, err, ragerr.ErrMissingField)
}

func TestSchemas_Valid(t *testing.T) {
	for _, s := range []vectorstore.Schema{MetadataSchema(DefaultDimension), TranscriptSchema(DefaultDimension)} {
		require.NoError(t, s.Validate())
		assert.Equal(t, DefaultDimension, s.Dim())
		assert.Equal(t, vectorstore.MetricL2, s.Metric())
		assert.Equal(t, "IVF_FLAT", s.Index.Algorithm)
	}
}
