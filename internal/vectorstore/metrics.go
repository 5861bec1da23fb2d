package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

var tracer = otel.Tracer("transcriptrag.vectorstore")

var (
	// OperationsTotal counts store operations.
	// Labels: provider, operation, result (ok, or the error kind)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "transcriptrag",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"provider", "operation", "result"},
	)

	// OperationDuration tracks operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "transcriptrag",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// RecordsInserted counts inserted records per collection.
	RecordsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "transcriptrag",
			Subsystem: "vectorstore",
			Name:      "records_inserted_total",
			Help:      "Total number of records inserted",
		},
		[]string{"provider", "collection"},
	)
)

// observe records metrics for one operation and closes its span.
func observe(span trace.Span, provider, operation string, start time.Time, err error) {
	OperationDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
	OperationsTotal.WithLabelValues(provider, operation, resultLabel(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := ragerr.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "error"
}

func collectionAttr(name string) attribute.KeyValue {
	return attribute.String("collection", name)
}
