package retrieval

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/transcriptrag/internal/chunker"
	"github.com/fyrsmithlabs/transcriptrag/internal/llm"
	"github.com/fyrsmithlabs/transcriptrag/internal/logging"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

const orchardText = "the orchard grows red apples. cars drive on quick roads."

func TestAnswerQuery_Rehydrates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 4})
	require.True(t, f.svc.Ingest(ctx, video("orchard0001", "Orchard", "a farm tour"), orchardText).OK())

	snippets, err := f.svc.AnswerQuery(ctx, "red apples", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, snippets)

	for i, sn := range snippets {
		want, err := chunker.Slice(orchardText, sn.Start, sn.End)
		require.NoError(t, err)
		assert.Equal(t, want, sn.Text)
		assert.Equal(t, "orchard0001", sn.SourceID)
		if i > 0 {
			assert.GreaterOrEqual(t, sn.Distance, snippets[i-1].Distance)
		}
	}
	assert.Contains(t, snippets[0].Text, "apple")
}

func TestAnswerQuery_DefaultK(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 5, ChunkOverlap: 0, DefaultK: 2})
	require.True(t, f.svc.Ingest(ctx, video("orchard0001", "Orchard", "a farm tour"), orchardText).OK())

	snippets, err := f.svc.AnswerQuery(ctx, "apples", 0, 0)
	require.NoError(t, err)
	assert.Len(t, snippets, 2)
}

func TestAnswerQuery_DistanceThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 4, MaxDistance: 1e-6})
	require.True(t, f.svc.Ingest(ctx, video("orchard0001", "Orchard", "a farm tour"), orchardText).OK())

	snippets, err := f.svc.AnswerQuery(ctx, "zzz", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, snippets, "configured threshold drops far results")

	snippets, err = f.svc.AnswerQuery(ctx, "zzz", 10, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, snippets, "explicit threshold overrides the default")
}

func TestAnswerQuery_SkipsMissingOrigin(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 4}, WithLogger(logger.Underlying()))

	report := f.svc.Ingest(ctx, video("orchard0001", "Orchard", "a farm tour"), orchardText)
	require.True(t, report.OK())
	require.NoError(t, os.Remove(report.TextPath))

	snippets, err := f.svc.AnswerQuery(ctx, "red apples", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, snippets)
	logger.AssertLogged(t, zapcore.WarnLevel, "skipping unreadable snippet")
}

func TestAnswerQuery_SkipsTruncatedOrigin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 4})

	report := f.svc.Ingest(ctx, video("orchard0001", "Orchard", "a farm tour"), orchardText)
	require.True(t, report.OK())
	require.NoError(t, os.WriteFile(report.TextPath, []byte("the orchard"), 0o644))

	snippets, err := f.svc.AnswerQuery(ctx, "orchard", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, snippets, "every stored range now lies past the end of the file")
}

func TestAnswerQuery_SkipsChangedOrigin(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger()
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 4}, WithLogger(logger.Underlying()))

	report := f.svc.Ingest(ctx, video("orchard0001", "Orchard", "a farm tour"), orchardText)
	require.True(t, report.OK())
	// Same length, different text: every stored range is still in bounds.
	require.NoError(t, os.WriteFile(report.TextPath, []byte(strings.ToUpper(orchardText)), 0o644))

	snippets, err := f.svc.AnswerQuery(ctx, "red apples", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, snippets)
	logger.AssertLogged(t, zapcore.WarnLevel, "skipping unreadable snippet")
}

func TestAnswerQuery_Errors(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.svc.AnswerQuery(context.Background(), "  ", 3, 0)
	assert.ErrorIs(t, err, ragerr.ErrInvalidArgument)

	_, err = f.svc.SearchMetadata(context.Background(), "", 3, "")
	assert.ErrorIs(t, err, ragerr.ErrInvalidArgument)
}

func TestAnswerQuery_EmptyStore(t *testing.T) {
	f := newFixture(t, Config{})

	snippets, err := f.svc.AnswerQuery(context.Background(), "anything", 3, 0)
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestAnswerQuery_WrongQueryDimension(t *testing.T) {
	f := newFixture(t, Config{Dimension: 8})

	_, err := f.svc.AnswerQuery(context.Background(), "apples", 3, 0)
	assert.ErrorIs(t, err, ragerr.ErrDimensionMismatch)
}

func TestSearchMetadata_Filter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	popular := video("popular0001", "Apple harvest", "red apples are sweet")
	popular.ViewCount = 5000
	quiet := video("quiet000001", "Apple pie", "red apples are sweet and baked")
	quiet.ViewCount = 10
	require.True(t, f.svc.Ingest(ctx, popular, "harvest").OK())
	require.True(t, f.svc.Ingest(ctx, quiet, "pie").OK())

	hits, err := f.svc.SearchMetadata(ctx, "apples", 5, "view_count > 1000")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "popular0001", hits[0].Item.ID)
	assert.Equal(t, int64(5000), hits[0].Item.ViewCount)

	_, err = f.svc.SearchMetadata(ctx, "apples", 5, "view_count >")
	assert.ErrorIs(t, err, ragerr.ErrInvalidArgument)
}

type fakeCompleter struct {
	prompt string
	reply  string
	err    error
}

func (c *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompt = prompt
	return c.reply, c.err
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{reply: "  Red apples are sweet.\n"}
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 4, ContextTokens: 100000}, WithCompleter(completer))
	require.True(t, f.svc.Ingest(ctx, video("orchard0001", "Orchard", "a farm tour"), orchardText).OK())

	answer, err := f.svc.Ask(ctx, "What grows in the orchard?", 2)
	require.NoError(t, err)
	assert.Equal(t, "Red apples are sweet.", answer.Text)
	assert.Equal(t, "What grows in the orchard?", answer.Question)
	require.Len(t, answer.Snippets, 2)
	assert.Contains(t, completer.prompt, "What grows in the orchard?")
	assert.Contains(t, completer.prompt, "[1] "+strings.TrimSpace(answer.Snippets[0].Text))
	assert.Contains(t, completer.prompt, "[2] "+strings.TrimSpace(answer.Snippets[1].Text))
}

func TestAsk_BudgetDropsSnippets(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{reply: "I don't know."}
	f := newFixture(t, Config{ChunkSize: 20, ChunkOverlap: 4, ContextTokens: 1},
		WithCompleter(completer), WithBudget(llm.EstimateBudget()))
	require.True(t, f.svc.Ingest(ctx, video("orchard0001", "Orchard", "a farm tour"), orchardText).OK())

	answer, err := f.svc.Ask(ctx, "What grows in the orchard?", 3)
	require.NoError(t, err)
	assert.Empty(t, answer.Snippets)
	assert.Equal(t, "I don't know.", answer.Text)
	assert.NotContains(t, completer.prompt, "[1]")
}

func TestAsk_Errors(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, Config{})
	_, err := f.svc.Ask(ctx, "question", 1)
	assert.ErrorIs(t, err, ragerr.ErrLLMService)

	failing := &fakeCompleter{err: ragerr.Wrap("llm.complete", ragerr.ErrLLMService, errors.New("rate limited"))}
	f = newFixture(t, Config{}, WithCompleter(failing))
	_, err = f.svc.Ask(ctx, "question", 1)
	assert.ErrorIs(t, err, ragerr.ErrLLMService)

	_, err = f.svc.Ask(ctx, "", 1)
	assert.ErrorIs(t, err, ragerr.ErrInvalidArgument)
}
