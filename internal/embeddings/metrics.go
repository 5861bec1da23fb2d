package embeddings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/fyrsmithlabs/transcriptrag/internal/embeddings"

// Metrics records embedding calls. Instruments that failed to register are
// left nil and skipped.
type Metrics struct {
	duration metric.Float64Histogram
	texts    metric.Int64Histogram
	inflight metric.Int64UpDownCounter
	failures metric.Int64Counter
}

// NewMetrics registers the instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(meterName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	var m Metrics
	var errs []error
	var err error

	m.duration, err = meter.Float64Histogram("transcriptrag.embedding.generation_duration_seconds",
		metric.WithDescription("Embedding call latency by model and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	errs = append(errs, err)
	m.texts, err = meter.Int64Histogram("transcriptrag.embedding.batch_size",
		metric.WithDescription("Texts per embedding call"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 4, 16, 32, 64, 128, 256, 512),
	)
	errs = append(errs, err)
	m.inflight, err = meter.Int64UpDownCounter("transcriptrag.embedding.inflight",
		metric.WithDescription("Embedding calls in progress"),
		metric.WithUnit("{call}"),
	)
	errs = append(errs, err)
	m.failures, err = meter.Int64Counter("transcriptrag.embedding.errors_total",
		metric.WithDescription("Failed embedding calls by error kind"),
		metric.WithUnit("{error}"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		logger.Warn("registering embedding instruments", zap.Error(err))
	}
	return &m
}

// Start marks a call in flight and returns a function that ends it.
func (m *Metrics) Start(ctx context.Context, model, operation string) func() {
	if m.inflight == nil {
		return func() {}
	}
	attrs := metric.WithAttributes(attribute.String("model", model), attribute.String("operation", operation))
	m.inflight.Add(ctx, 1, attrs)
	return func() { m.inflight.Add(ctx, -1, attrs) }
}

// RecordGeneration records one finished call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, took time.Duration, batchSize int, err error) {
	base := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("operation", operation),
	}
	attrs := metric.WithAttributes(base...)

	if m.duration != nil {
		m.duration.Record(ctx, took.Seconds(), attrs)
	}
	if m.texts != nil && batchSize > 0 {
		m.texts.Record(ctx, int64(batchSize), attrs)
	}
	if m.failures != nil && err != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(append(base, attribute.String("kind", errorKind(err)))...))
	}
}
