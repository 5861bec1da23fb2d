package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/chunker"
	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
	"github.com/fyrsmithlabs/transcriptrag/internal/records"
	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore/filter"
)

// IngestReport describes the outcome of ingesting one source. The metadata
// row and the chunk rows are written independently; Errors lists every
// failure of either.
type IngestReport struct {
	SourceID        string        `json:"source_id"`
	Title           string        `json:"title,omitempty"`
	TextPath        string        `json:"text_path,omitempty"`
	ChunksWritten   int           `json:"chunks_written"`
	MetadataWritten bool          `json:"metadata_written"`
	Errors          []error       `json:"-"`
	Duration        time.Duration `json:"duration"`
}

// OK reports whether the source was ingested without errors.
func (r IngestReport) OK() bool {
	return len(r.Errors) == 0
}

// Err joins the report errors, or returns nil.
func (r IngestReport) Err() error {
	return errors.Join(r.Errors...)
}

// ErrorStrings returns the report errors as text.
func (r IngestReport) ErrorStrings() []string {
	out := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		out[i] = err.Error()
	}
	return out
}

// Ingest stores item and rawText as side files, then writes the metadata
// row and the chunk rows. Rows previously written for the same source id
// are replaced.
//
// A failed metadata write does not prevent the chunk writes and vice
// versa. New rows are inserted before the previous ones are removed, and
// the text file is only replaced once the new chunk rows are in place, so
// a failed re-ingest leaves the previous chunks readable.
func (s *Service) Ingest(ctx context.Context, item sources.SourceItem, rawText string) IngestReport {
	const op = "retrieval.ingest"
	start := time.Now()
	report := IngestReport{SourceID: item.ID, Title: item.Title}

	if err := item.Validate(); err != nil {
		report.Errors = append(report.Errors, err)
		return s.finish(report, start)
	}
	if err := s.EnsureCollections(ctx); err != nil {
		report.Errors = append(report.Errors, err)
		return s.finish(report, start)
	}

	path, err := s.side.TextPath(item)
	if err != nil {
		report.Errors = append(report.Errors, err)
		s.writeMetadata(ctx, item, &report)
		return s.finish(report, start)
	}
	report.TextPath = path
	save := func() error {
		saved, err := s.side.Save(item, rawText)
		if err != nil {
			return err
		}
		if saved != path {
			return ragerr.New(op, ragerr.ErrSourceUnavailable, "side file of %q moved to %s during ingest", item.ID, saved)
		}
		return nil
	}
	return s.finish(s.index(ctx, item, rawText, save, report), start)
}

// IngestStored indexes a side-file pair that is already on disk.
func (s *Service) IngestStored(ctx context.Context, stored sources.Stored) IngestReport {
	start := time.Now()
	report := IngestReport{SourceID: stored.Item.ID, Title: stored.Item.Title, TextPath: stored.TextPath}

	if err := s.EnsureCollections(ctx); err != nil {
		report.Errors = append(report.Errors, err)
		return s.finish(report, start)
	}
	text, err := sources.ReadText(stored.TextPath)
	if err != nil {
		report.Errors = append(report.Errors, err)
		s.writeMetadata(ctx, stored.Item, &report)
		return s.finish(report, start)
	}
	return s.finish(s.index(ctx, stored.Item, text, nil, report), start)
}

// IngestIdentifier fetches identifier through the configured fetcher and
// ingests the result.
func (s *Service) IngestIdentifier(ctx context.Context, identifier string) IngestReport {
	const op = "retrieval.ingest_identifier"
	start := time.Now()
	if s.fetcher == nil {
		err := ragerr.New(op, ragerr.ErrSourceUnavailable, "no fetcher configured")
		return s.finish(IngestReport{SourceID: identifier, Errors: []error{err}}, start)
	}

	item, text, err := s.fetcher.Fetch(ctx, identifier)
	if err != nil {
		return s.finish(IngestReport{SourceID: identifier, Errors: []error{err}}, start)
	}
	return s.Ingest(ctx, item, text)
}

// index writes the rows of item. save, when set, persists the text the
// chunk offsets refer to; it runs after the new chunk rows are inserted
// and before the previous ones are removed.
func (s *Service) index(ctx context.Context, item sources.SourceItem, text string, save func() error, report IngestReport) IngestReport {
	ctx, span := tracer.Start(ctx, "retrieval.Ingest")
	span.SetAttributes(attribute.String("source_id", item.ID))
	defer span.End()

	s.writeMetadata(ctx, item, &report)
	s.writeChunks(ctx, item, text, save, &report)

	if err := report.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("chunks", report.ChunksWritten))
	return report
}

func (s *Service) writeMetadata(ctx context.Context, item sources.SourceItem, report *IngestReport) {
	schema := records.MetadataSchema(s.cfg.Dimension)
	rec, err := s.builder.BuildMetadata(ctx, item, schema)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	ids, err := s.store.Insert(ctx, s.cfg.MetadataCollection, []vectorstore.Record{rec})
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	report.MetadataWritten = true
	if err := s.dropPrevious(ctx, s.cfg.MetadataCollection, item.ID, ids); err != nil {
		report.Errors = append(report.Errors, err)
	}
}

func (s *Service) writeChunks(ctx context.Context, item sources.SourceItem, text string, save func() error, report *IngestReport) {
	seq, err := s.splitter.Split(text)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	chunks := chunker.Collect(seq)

	var recs []vectorstore.Record
	if len(chunks) == 0 {
		s.logger.Warn("source has no text, skipping chunks", zap.String("source_id", item.ID))
	} else {
		recs, err = s.builder.BuildChunks(ctx, chunks, item, report.TextPath, records.TranscriptSchema(s.cfg.Dimension))
		if err != nil {
			report.Errors = append(report.Errors, err)
			return
		}
	}

	var ids []any
	if len(recs) > 0 {
		ids, err = s.store.Insert(ctx, s.cfg.TranscriptCollection, recs)
		if err != nil {
			report.Errors = append(report.Errors, err)
			return
		}
	}
	if save != nil {
		if err := save(); err != nil {
			report.Errors = append(report.Errors, err)
			s.dropInserted(ctx, s.cfg.TranscriptCollection, item.ID, ids)
			return
		}
	}
	report.ChunksWritten = len(recs)
	if err := s.dropPrevious(ctx, s.cfg.TranscriptCollection, item.ID, ids); err != nil {
		report.Errors = append(report.Errors, err)
	}
}

// dropPrevious deletes the rows of source id except the freshly inserted
// keep. Rows it fails to delete stay searchable; chunk rows among them are
// caught by the chunk hash when read back.
func (s *Service) dropPrevious(ctx context.Context, collection, id string, keep []any) error {
	expr := records.FieldID + " == " + filter.Quote(id)
	if len(keep) > 0 {
		expr += " and not (" + records.FieldPK + " in " + pkList(keep) + ")"
	}
	n, err := s.store.Delete(ctx, collection, expr)
	if err != nil {
		return fmt.Errorf("removing previous rows of %q from %s: %w", id, collection, err)
	}
	if n > 0 {
		s.logger.Debug("replaced previous rows",
			zap.String("collection", collection),
			zap.String("source_id", id),
			zap.Int("rows", n),
		)
	}
	return nil
}

// dropInserted removes rows inserted by an ingest that could not complete.
func (s *Service) dropInserted(ctx context.Context, collection, id string, ids []any) {
	if len(ids) == 0 {
		return
	}
	if _, err := s.store.Delete(ctx, collection, records.FieldPK+" in "+pkList(ids)); err != nil {
		s.logger.Warn("removing rows of failed ingest",
			zap.String("collection", collection),
			zap.String("source_id", id),
			zap.Error(err),
		)
	}
}

func pkList(ids []any) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (s *Service) finish(report IngestReport, start time.Time) IngestReport {
	report.Duration = time.Since(start)
	if report.OK() {
		s.logger.Info("source ingested",
			zap.String("source_id", report.SourceID),
			zap.Int("chunks", report.ChunksWritten),
			zap.Duration("duration", report.Duration),
		)
		return report
	}
	s.logger.Warn("source ingested with errors",
		zap.String("source_id", report.SourceID),
		zap.Int("chunks", report.ChunksWritten),
		zap.Bool("metadata_written", report.MetadataWritten),
		zap.Error(report.Err()),
	)
	return report
}
