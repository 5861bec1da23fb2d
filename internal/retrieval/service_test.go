package retrieval

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/transcriptrag/internal/logging"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
	"github.com/fyrsmithlabs/transcriptrag/internal/records"
	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore"
)

const testDim = 26

// letterEmbedder embeds text as its normalised letter histogram, so texts
// sharing letters are close under L2.
type letterEmbedder struct {
	mu     sync.Mutex
	calls  int
	poison string
}

func (e *letterEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.poison != "" && strings.Contains(t, e.poison) {
			return nil, errors.New("embedding backend rejected input")
		}
		out[i] = letters(t)
	}
	return out, nil
}

func (e *letterEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return letters(text), nil
}

func letters(text string) []float32 {
	v := make([]float32, testDim)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

type fixture struct {
	svc      *Service
	store    vectorstore.Store
	embedder *letterEmbedder
	side     *sources.Store
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	store, err := vectorstore.NewLocalStore(vectorstore.LocalConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if cfg.Dimension == 0 {
		cfg.Dimension = testDim
	}
	emb := &letterEmbedder{}
	side := sources.NewStore(filepath.Join(t.TempDir(), "transcripts"))
	svc, err := NewService(cfg, store, emb, side, opts...)
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, embedder: emb, side: side}
}

func video(id, title, description string) sources.SourceItem {
	return sources.SourceItem{
		ID:          id,
		URI:         "https://www.youtube.com/watch?v=" + id,
		SourceType:  sources.SourceVideo,
		Title:       title,
		Description: description,
	}
}

func TestNewService_Validation(t *testing.T) {
	store, err := vectorstore.NewLocalStore(vectorstore.LocalConfig{}, nil)
	require.NoError(t, err)
	defer store.Close()
	side := sources.NewStore(t.TempDir())

	_, err = NewService(Config{}, nil, &letterEmbedder{}, side)
	assert.Error(t, err)
	_, err = NewService(Config{}, store, nil, side)
	assert.Error(t, err)
	_, err = NewService(Config{}, store, &letterEmbedder{}, nil)
	assert.Error(t, err)
	_, err = NewService(Config{ChunkSize: 10, ChunkOverlap: 10}, store, &letterEmbedder{}, side)
	assert.Error(t, err)
	_, err = NewService(Config{MetadataCollection: "same", TranscriptCollection: "same"}, store, &letterEmbedder{}, side)
	assert.Error(t, err)

	svc, err := NewService(Config{}, store, &letterEmbedder{}, side)
	require.NoError(t, err)
	assert.Equal(t, "transcript_metadata", svc.Config().MetadataCollection)
	assert.Equal(t, "transcript_collection", svc.Config().TranscriptCollection)
	assert.Equal(t, records.DefaultDimension, svc.Config().Dimension)
	assert.Equal(t, 1024, svc.Config().ChunkSize)
	assert.Equal(t, 4, svc.Config().DefaultK)
}

func TestIngest_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 5})

	report := f.svc.Ingest(ctx, video("apples01", "Apples", "red apples are sweet"), strings.Repeat("A", 50))
	require.True(t, report.OK(), report.Err())
	assert.Equal(t, 3, report.ChunksWritten)
	assert.True(t, report.MetadataWritten)
	assert.FileExists(t, report.TextPath)

	chunks, err := f.store.GetAll(ctx, "transcript_collection", "", nil, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	wantOffsets := [][2]int64{{0, 20}, {15, 35}, {30, 50}}
	for i, c := range chunks {
		assert.Equal(t, "apples01", c[records.FieldID])
		assert.Equal(t, wantOffsets[i][0], c[records.FieldStart])
		assert.Equal(t, wantOffsets[i][1], c[records.FieldEnd])
		assert.Equal(t, report.TextPath, c[records.FieldTranscriptPath])
	}

	meta, err := f.store.GetAll(ctx, "transcript_metadata", "", nil, 0)
	require.NoError(t, err)
	require.Len(t, meta, 1)
	assert.Equal(t, "Apples", meta[0]["title"])

	other := f.svc.Ingest(ctx, video("cars0000001", "Cars", "blue cars drive fast on the motorway"), "vroom vroom")
	require.True(t, other.OK(), other.Err())

	hits, err := f.svc.SearchMetadata(ctx, "apple", 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Apples", hits[0].Item.Title)
	assert.Equal(t, "red apples are sweet", hits[0].Item.Description)
}

func TestIngest_ReplacesPreviousRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 5})
	item := video("apples01", "Apples", "red apples are sweet")

	require.True(t, f.svc.Ingest(ctx, item, strings.Repeat("A", 50)).OK())
	report := f.svc.Ingest(ctx, item, strings.Repeat("B", 30))
	require.True(t, report.OK(), report.Err())
	assert.Equal(t, 2, report.ChunksWritten)

	chunks, err := f.store.GetAll(ctx, "transcript_collection", "", nil, 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	meta, err := f.store.GetAll(ctx, "transcript_metadata", "", nil, 0)
	require.NoError(t, err)
	assert.Len(t, meta, 1)
}

func TestIngest_MetadataFailureKeepsChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 5})
	f.embedder.poison = "poison"

	report := f.svc.Ingest(ctx, video("apples01", "Apples", "poison apples"), strings.Repeat("A", 50))
	assert.False(t, report.OK())
	assert.False(t, report.MetadataWritten)
	assert.Equal(t, 3, report.ChunksWritten)
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], ragerr.ErrEmbeddingService)
}

func TestIngest_ChunkFailureKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 5})
	f.embedder.poison = "poison"

	report := f.svc.Ingest(ctx, video("apples01", "Apples", "red apples"), "some text with poison inside")
	assert.True(t, report.MetadataWritten)
	assert.Equal(t, 0, report.ChunksWritten)
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], ragerr.ErrEmbeddingService)
}

func TestIngest_SideFileFailureKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.NewLocalStore(vectorstore.LocalConfig{}, nil)
	require.NoError(t, err)
	defer store.Close()

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	svc, err := NewService(Config{Dimension: testDim}, store, &letterEmbedder{}, sources.NewStore(blocker))
	require.NoError(t, err)

	report := svc.Ingest(ctx, video("apples01", "Apples", "red apples"), "text")
	assert.True(t, report.MetadataWritten)
	assert.Equal(t, 0, report.ChunksWritten)
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], ragerr.ErrSourceUnavailable)
}

// rejectingStore fails every insert into one collection.
type rejectingStore struct {
	vectorstore.Store
	collection string
}

func (s *rejectingStore) Insert(ctx context.Context, name string, recs []vectorstore.Record) ([]any, error) {
	if name == s.collection {
		return nil, ragerr.New("vectorstore.insert", ragerr.ErrUnexpectedBackend, "insert into %s rejected", name)
	}
	return s.Store.Insert(ctx, name, recs)
}

// onlyLetter asserts that every snippet text consists of letter alone.
func onlyLetter(t *testing.T, snippets []AnswerSnippet, letter string) {
	t.Helper()
	for _, sn := range snippets {
		assert.Empty(t, strings.Trim(sn.Text, letter), "snippet %q of %s", sn.Text, sn.SourceID)
	}
}

func TestIngest_FailedReingestKeepsPreviousText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 5})
	item := video("zebra0001", "Zebra", "striped horses")

	first := f.svc.Ingest(ctx, item, strings.Repeat("z", 50))
	require.True(t, first.OK(), first.Err())

	f.embedder.poison = "poison"
	report := f.svc.Ingest(ctx, item, "poison "+strings.Repeat("q", 60))
	assert.False(t, report.OK())
	assert.Equal(t, 0, report.ChunksWritten)
	assert.ErrorIs(t, report.Err(), ragerr.ErrEmbeddingService)

	text, err := sources.ReadText(first.TextPath)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("z", 50), text, "side file is only replaced after the new chunks are stored")

	snippets, err := f.svc.AnswerQuery(ctx, "zzz", 10, 0)
	require.NoError(t, err)
	require.Len(t, snippets, 3)
	onlyLetter(t, snippets, "z")
}

func TestIngest_FailedInsertKeepsPreviousRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 5})
	item := video("zebra0001", "Zebra", "striped horses")
	require.True(t, f.svc.Ingest(ctx, item, strings.Repeat("z", 50)).OK())

	rejecting := &rejectingStore{Store: f.store, collection: "transcript_collection"}
	svc, err := NewService(Config{Dimension: testDim, ChunkSize: 20, ChunkOverlap: 5}, rejecting, f.embedder, f.side)
	require.NoError(t, err)

	report := svc.Ingest(ctx, item, strings.Repeat("q", 30))
	assert.True(t, report.MetadataWritten)
	assert.Equal(t, 0, report.ChunksWritten)
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], ragerr.ErrUnexpectedBackend)

	chunks, err := f.store.GetAll(ctx, "transcript_collection", "", nil, 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)

	snippets, err := f.svc.AnswerQuery(ctx, "zzz", 10, 0)
	require.NoError(t, err)
	require.Len(t, snippets, 3)
	onlyLetter(t, snippets, "z")
}

func TestIngest_SameTitleDistinctSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 5})

	first := f.svc.Ingest(ctx, video("weekly0001", "Weekly Update", "week one"), strings.Repeat("z", 40))
	require.True(t, first.OK(), first.Err())
	second := f.svc.Ingest(ctx, video("weekly0002", "Weekly Update", "week two"), strings.Repeat("q", 40))
	require.True(t, second.OK(), second.Err())
	assert.NotEqual(t, first.TextPath, second.TextPath)

	snippets, err := f.svc.AnswerQuery(ctx, "zzz", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, snippets)
	assert.Equal(t, "weekly0001", snippets[0].SourceID)
	for _, sn := range snippets {
		want := map[string]string{"weekly0001": "z", "weekly0002": "q"}[sn.SourceID]
		assert.Empty(t, strings.Trim(sn.Text, want), "snippet %q of %s", sn.Text, sn.SourceID)
	}
}

func TestIngest_QuoteCharactersInID(t *testing.T) {
	for _, id := range []string{"it's", `a"b'c`, `back\slash`} {
		t.Run(id, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 5})
			item := video(id, "Quoted", "red apples")

			require.True(t, f.svc.Ingest(ctx, item, strings.Repeat("a", 50)).OK())
			report := f.svc.Ingest(ctx, item, strings.Repeat("a", 30))
			require.True(t, report.OK(), report.Err())

			chunks, err := f.store.GetAll(ctx, "transcript_collection", "", []string{"id"}, 0)
			require.NoError(t, err)
			assert.Len(t, chunks, 2, "previous rows replaced")

			items, err := f.svc.Sources(ctx, "", 0)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, id, items[0].ID)

			n, err := f.svc.Forget(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
		})
	}
}

func TestIngest_EmptyTextDropsPreviousChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 5})
	item := video("apples01", "Apples", "red apples")
	require.True(t, f.svc.Ingest(ctx, item, strings.Repeat("A", 50)).OK())

	report := f.svc.Ingest(ctx, item, "")
	require.True(t, report.OK(), report.Err())

	chunks, err := f.store.GetAll(ctx, "transcript_collection", "", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngest_InvalidItem(t *testing.T) {
	f := newFixture(t, Config{})

	report := f.svc.Ingest(context.Background(), sources.SourceItem{Title: "no id"}, "text")
	assert.False(t, report.OK())
	assert.ErrorIs(t, report.Err(), ragerr.ErrInvalidArgument)
	assert.Equal(t, 0, f.embedder.calls)
}

func TestIngest_EmptyText(t *testing.T) {
	f := newFixture(t, Config{})

	report := f.svc.Ingest(context.Background(), video("apples01", "Apples", "red apples"), "")
	require.True(t, report.OK(), report.Err())
	assert.True(t, report.MetadataWritten)
	assert.Equal(t, 0, report.ChunksWritten)
}

func TestEnsureCollections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	require.NoError(t, f.svc.EnsureCollections(ctx))
	names, err := f.store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"transcript_collection", "transcript_metadata"}, names)

	// A second service over the same store keeps the existing rows.
	require.True(t, f.svc.Ingest(ctx, video("apples01", "Apples", "red apples"), "text").OK())
	again, err := NewService(Config{Dimension: testDim}, f.store, f.embedder, f.side)
	require.NoError(t, err)
	require.NoError(t, again.EnsureCollections(ctx))
	info, err := f.store.DescribeCollection(ctx, "transcript_metadata")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.RowCount)

	require.NoError(t, again.RecreateCollections(ctx))
	info, err = f.store.DescribeCollection(ctx, "transcript_metadata")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.RowCount)
}

func TestEnsureCollections_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.NewLocalStore(vectorstore.LocalConfig{}, nil)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.CreateCollection(ctx, "transcript_metadata", records.MetadataSchema(8)))

	svc, err := NewService(Config{Dimension: testDim}, store, &letterEmbedder{}, sources.NewStore(t.TempDir()))
	require.NoError(t, err)

	err = svc.EnsureCollections(ctx)
	assert.ErrorIs(t, err, ragerr.ErrDimensionMismatch)

	require.NoError(t, svc.RecreateCollections(ctx))
	info, err := store.DescribeCollection(ctx, "transcript_metadata")
	require.NoError(t, err)
	assert.Equal(t, testDim, info.Schema.Dim())
}

func TestEnsureCollections_MissingField(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.NewLocalStore(vectorstore.LocalConfig{}, nil)
	require.NoError(t, err)
	defer store.Close()

	schema := records.TranscriptSchema(testDim)
	kept := schema.Fields[:0:0]
	for _, fld := range schema.Fields {
		if fld.Name != records.FieldChunkHash {
			kept = append(kept, fld)
		}
	}
	schema.Fields = kept
	require.NoError(t, store.CreateCollection(ctx, "transcript_collection", schema))

	svc, err := NewService(Config{Dimension: testDim}, store, &letterEmbedder{}, sources.NewStore(t.TempDir()))
	require.NoError(t, err)
	err = svc.EnsureCollections(ctx)
	assert.ErrorIs(t, err, ragerr.ErrSchemaError)
	assert.ErrorContains(t, err, records.FieldChunkHash)
}

func TestForgetAndSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 5})

	popular := video("popular0001", "Popular", "many views")
	popular.ViewCount = 5000
	quiet := video("quiet000001", "Quiet", "few views")
	quiet.ViewCount = 10
	require.True(t, f.svc.Ingest(ctx, popular, strings.Repeat("p", 30)).OK())
	require.True(t, f.svc.Ingest(ctx, quiet, strings.Repeat("q", 30)).OK())

	items, err := f.svc.Sources(ctx, "view_count > 1000", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, popular, items[0])

	all, err := f.svc.Sources(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	n, err := f.svc.Forget(ctx, "popular0001")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "one metadata row and two chunk rows")

	items, err = f.svc.Sources(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "quiet000001", items[0].ID)
}

func TestIngest_LogsFailures(t *testing.T) {
	logger := logging.NewTestLogger()
	f := newFixture(t, Config{}, WithLogger(logger.Underlying()))

	f.svc.Ingest(context.Background(), sources.SourceItem{}, "text")
	logger.AssertLogged(t, zapcore.WarnLevel, "source ingested with errors")
}
