package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"
)

func fieldKeys(ctx context.Context) map[string]string {
	out := map[string]string{}
	for _, f := range ContextFields(ctx) {
		out[f.Key] = f.String
	}
	return out
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_IDs(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithSourceID(ctx, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	ctx = WithRequestID(ctx, "req-9")

	assert.Equal(t, map[string]string{
		"run.id":     "run-1",
		"source.id":  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"request.id": "req-9",
	}, fieldKeys(ctx))
}

func TestContextFields_Trace(t *testing.T) {
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(tracetest.NewInMemoryExporter()))
	ctx, span := provider.Tracer("test").Start(context.Background(), "ingest")
	defer span.End()

	keys := fieldKeys(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), keys["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), keys["span_id"])
}

func TestWithSourceID_Truncates(t *testing.T) {
	ctx := WithSourceID(context.Background(), strings.Repeat("x", 1000))
	assert.Len(t, SourceIDFromContext(ctx), maxIDLen)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()).Underlying())

	tl := NewTestLogger()
	ctx := WithLogger(WithRunID(context.Background(), "run-2"), tl.Logger)
	FromContext(ctx).Info(ctx, "batch done")

	tl.AssertLogged(t, zapcore.InfoLevel, "batch done")
	tl.AssertField(t, "batch done", "run.id", "run-2")
}
