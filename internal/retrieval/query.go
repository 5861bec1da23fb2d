package retrieval

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/llm"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
	"github.com/fyrsmithlabs/transcriptrag/internal/records"
	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore/filter"
)

// AnswerSnippet is a chunk of source text relevant to a query.
type AnswerSnippet struct {
	SourceID   string  `json:"source_id"`
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	OriginPath string  `json:"origin_path"`
	Distance   float32 `json:"distance"`
}

// MetadataHit is a source found by SearchMetadata.
type MetadataHit struct {
	Item     sources.SourceItem `json:"item"`
	Distance float32            `json:"distance"`
}

// Answer is the language model reply to a question together with the
// snippets it was given.
type Answer struct {
	Question string          `json:"question"`
	Text     string          `json:"answer"`
	Snippets []AnswerSnippet `json:"snippets"`
}

var chunkFields = []string{records.FieldID, records.FieldStart, records.FieldEnd, records.FieldTranscriptPath, records.FieldChunkHash}

// AnswerQuery returns up to k snippets nearest to query, closest first.
//
// Results further than maxDistance are dropped; a non-positive
// maxDistance falls back to Config.MaxDistance, and a zero threshold keeps
// everything. Snippet text is read back from the side file using the
// stored offsets. Snippets whose file is missing or no longer matches are
// logged and skipped.
func (s *Service) AnswerQuery(ctx context.Context, query string, k int, maxDistance float64) ([]AnswerSnippet, error) {
	const op = "retrieval.answer_query"
	ctx, span := tracer.Start(ctx, "retrieval.AnswerQuery")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, ragerr.New(op, ragerr.ErrInvalidArgument, "query is empty")
	}
	if k <= 0 {
		k = s.cfg.DefaultK
	}
	threshold := maxDistance
	if threshold <= 0 {
		threshold = s.cfg.MaxDistance
	}
	span.SetAttributes(attribute.Int("k", k), attribute.Float64("max_distance", threshold))

	vec, err := s.embedQuery(ctx, op, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.EnsureCollections(ctx); err != nil {
		return nil, err
	}
	results, err := s.store.Search(ctx, s.cfg.TranscriptCollection, vec, k, "", chunkFields)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	snippets := make([]AnswerSnippet, 0, len(results))
	for _, r := range results {
		if threshold > 0 && float64(r.Distance) > threshold {
			continue
		}
		snippet, err := rehydrate(r)
		if err != nil {
			s.logger.Warn("skipping unreadable snippet",
				zap.Any("source_id", r.Record[records.FieldID]),
				zap.Error(err),
			)
			continue
		}
		snippets = append(snippets, snippet)
	}
	span.SetAttributes(attribute.Int("results", len(snippets)))

	s.logger.Debug("query answered",
		zap.String("query", query),
		zap.Int("k", k),
		zap.Int("hits", len(results)),
		zap.Int("snippets", len(snippets)),
	)
	return snippets, nil
}

// SearchMetadata returns up to k sources whose description embedding is
// nearest to query and that satisfy filterExpr, such as
// "view_count > 1000".
func (s *Service) SearchMetadata(ctx context.Context, query string, k int, filterExpr string) ([]MetadataHit, error) {
	const op = "retrieval.search_metadata"
	ctx, span := tracer.Start(ctx, "retrieval.SearchMetadata")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, ragerr.New(op, ragerr.ErrInvalidArgument, "query is empty")
	}
	if k <= 0 {
		k = s.cfg.DefaultK
	}
	vec, err := s.embedQuery(ctx, op, query)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureCollections(ctx); err != nil {
		return nil, err
	}
	results, err := s.store.Search(ctx, s.cfg.MetadataCollection, vec, k, filterExpr, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	hits := make([]MetadataHit, len(results))
	for i, r := range results {
		hits[i] = MetadataHit{Item: itemFromRecord(r.Record), Distance: r.Distance}
	}
	return hits, nil
}

// Sources returns the metadata of stored sources matching filterExpr in
// ingestion order. limit <= 0 means no limit.
func (s *Service) Sources(ctx context.Context, filterExpr string, limit int) ([]sources.SourceItem, error) {
	if err := s.EnsureCollections(ctx); err != nil {
		return nil, err
	}
	recs, err := s.store.GetAll(ctx, s.cfg.MetadataCollection, filterExpr, nil, limit)
	if err != nil {
		return nil, err
	}
	items := make([]sources.SourceItem, len(recs))
	for i, r := range recs {
		items[i] = itemFromRecord(r)
	}
	return items, nil
}

// Forget removes every row of the source with the given id from both
// collections and returns how many were removed.
func (s *Service) Forget(ctx context.Context, sourceID string) (int, error) {
	if err := s.EnsureCollections(ctx); err != nil {
		return 0, err
	}
	expr := records.FieldID + " == " + filter.Quote(sourceID)
	total := 0
	for _, name := range []string{s.cfg.MetadataCollection, s.cfg.TranscriptCollection} {
		n, err := s.store.Delete(ctx, name, expr)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Ask answers question with the language model, grounded on the snippets
// AnswerQuery returns for it. Snippets are added closest first until the
// prompt budget, ContextTokens minus MaxTokens, is used up.
func (s *Service) Ask(ctx context.Context, question string, k int) (Answer, error) {
	const op = "retrieval.ask"
	ctx, span := tracer.Start(ctx, "retrieval.Ask")
	defer span.End()

	if s.completer == nil {
		return Answer{}, ragerr.New(op, ragerr.ErrLLMService, "no language model configured")
	}
	snippets, err := s.AnswerQuery(ctx, question, k, 0)
	if err != nil {
		return Answer{}, err
	}

	texts := make([]string, len(snippets))
	for i, sn := range snippets {
		texts[i] = sn.Text
	}
	limit := s.cfg.ContextTokens - s.cfg.MaxTokens - s.budget.Count(llm.PromptOverhead()) - s.budget.Count(question)
	fitted := s.budget.Fit(texts, max(limit, 0))
	if len(fitted) < len(texts) {
		s.logger.Debug("dropped snippets over the prompt budget",
			zap.Int("kept", len(fitted)),
			zap.Int("dropped", len(texts)-len(fitted)),
		)
	}

	prompt, err := llm.AnswerPrompt(question, fitted)
	if err != nil {
		return Answer{}, ragerr.Wrap(op, ragerr.ErrLLMService, err)
	}
	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		return Answer{}, err
	}
	return Answer{
		Question: question,
		Text:     strings.TrimSpace(text),
		Snippets: snippets[:len(fitted)],
	}, nil
}

func (s *Service) embedQuery(ctx context.Context, op, query string) ([]float32, error) {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if ragerr.KindOf(err) != nil {
			return nil, err
		}
		return nil, ragerr.Wrap(op, ragerr.ErrEmbeddingService, err)
	}
	if len(vec) != s.cfg.Dimension {
		return nil, ragerr.New(op, ragerr.ErrDimensionMismatch,
			"query embedding has dimension %d, collections expect %d", len(vec), s.cfg.Dimension)
	}
	return vec, nil
}

func rehydrate(r vectorstore.SearchResult) (AnswerSnippet, error) {
	const op = "retrieval.rehydrate"
	id, _ := r.Record[records.FieldID].(string)
	path, _ := r.Record[records.FieldTranscriptPath].(string)
	start, okStart := asInt(r.Record[records.FieldStart])
	end, okEnd := asInt(r.Record[records.FieldEnd])
	if path == "" || !okStart || !okEnd {
		return AnswerSnippet{}, ragerr.New(op, ragerr.ErrSourceUnavailable, "chunk of %q has no usable origin", id)
	}

	text, err := sources.ReadRange(path, start, end)
	if err != nil {
		return AnswerSnippet{}, err
	}
	if want, _ := r.Record[records.FieldChunkHash].(string); want != "" && want != records.ChunkHash(text) {
		return AnswerSnippet{}, ragerr.New(op, ragerr.ErrSourceUnavailable, "%s changed since chunk [%d,%d) of %q was indexed",
			path, start, end, id)
	}
	return AnswerSnippet{
		SourceID:   id,
		Text:       text,
		Start:      start,
		End:        end,
		OriginPath: path,
		Distance:   r.Distance,
	}, nil
}

func itemFromRecord(r vectorstore.Record) sources.SourceItem {
	str := func(name string) string {
		v, _ := r[name].(string)
		return v
	}
	count := func(name string) int64 {
		n, _ := asInt(r[name])
		return int64(n)
	}
	return sources.SourceItem{
		ID:           str("id"),
		URI:          str("uri"),
		SourceType:   sources.SourceType(str("source_type")),
		Title:        str("title"),
		Description:  str("description"),
		PublishDate:  str("publish_date"),
		ViewCount:    count("view_count"),
		LikeCount:    count("like_count"),
		DislikeCount: count("dislike_count"),
		CommentCount: count("comment_count"),
	}
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}
