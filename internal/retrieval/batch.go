package retrieval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/transcriptrag/internal/sources"
)

// Document is a source with its raw text, ready for ingestion.
type Document struct {
	Item sources.SourceItem
	Text string
}

// BatchReport aggregates the reports of one batch, in input order.
type BatchReport struct {
	RunID     string         `json:"run_id"`
	Reports   []IngestReport `json:"reports"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Duration  time.Duration  `json:"duration"`
}

// IngestBatch ingests docs with up to Config.Workers sources in flight.
// Collections are ensured once before the fan-out. A failing source never
// stops the others; the returned error is only set when the collections
// could not be ensured.
func (s *Service) IngestBatch(ctx context.Context, docs []Document) (BatchReport, error) {
	return s.fanOut(ctx, len(docs), func(ctx context.Context, i int) IngestReport {
		return s.Ingest(ctx, docs[i].Item, docs[i].Text)
	})
}

// IngestIdentifiers fetches and ingests every identifier concurrently.
func (s *Service) IngestIdentifiers(ctx context.Context, identifiers []string) (BatchReport, error) {
	return s.fanOut(ctx, len(identifiers), func(ctx context.Context, i int) IngestReport {
		return s.IngestIdentifier(ctx, identifiers[i])
	})
}

// IngestDir indexes every side-file pair in the side-file directory.
// Pairs that cannot be read are reported as failed entries.
func (s *Service) IngestDir(ctx context.Context) (BatchReport, error) {
	stored, listErr := s.side.List()
	if listErr != nil {
		s.logger.Warn("some side files were skipped", zap.String("dir", s.side.Dir()), zap.Error(listErr))
	}
	report, err := s.fanOut(ctx, len(stored), func(ctx context.Context, i int) IngestReport {
		return s.IngestStored(ctx, stored[i])
	})
	if listErr != nil {
		report.Reports = append(report.Reports, IngestReport{SourceID: s.side.Dir(), Errors: []error{listErr}})
		report.Failed++
	}
	return report, err
}

func (s *Service) fanOut(ctx context.Context, n int, ingest func(context.Context, int) IngestReport) (BatchReport, error) {
	start := time.Now()
	batch := BatchReport{RunID: uuid.NewString(), Reports: make([]IngestReport, n)}
	logger := s.logger.With(zap.String("run_id", batch.RunID))

	if err := s.EnsureCollections(ctx); err != nil {
		return batch, err
	}

	logger.Info("batch ingest started", zap.Int("sources", n), zap.Int("workers", s.cfg.Workers))

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i := range n {
		g.Go(func() error {
			batch.Reports[i] = ingest(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range batch.Reports {
		if r.OK() {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}
	batch.Duration = time.Since(start)

	logger.Info("batch ingest finished",
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed),
		zap.Duration("duration", batch.Duration),
	)
	return batch, nil
}
