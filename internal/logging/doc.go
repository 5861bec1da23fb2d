// Package logging builds the zap logger used across transcriptrag.
//
// The logger writes JSON or console output to stdout and, when telemetry is
// enabled, to an OpenTelemetry log provider. Every entry passes through a
// redacting encoder: fields named like credentials are replaced, and API
// keys embedded in strings (bearer tokens, key= query parameters of
// YouTube Data API URLs) are masked in place.
//
// Components accept a plain *zap.Logger; Logger.Underlying hands one out.
// The context-aware methods add trace_id, span_id and the ingestion run,
// source and request ids stored with WithRunID, WithSourceID and
// WithRequestID:
//
//	ctx = logging.WithRunID(ctx, report.RunID)
//	logger.Info(ctx, "batch finished", zap.Int("failed", n))
//
// Errors are never sampled. Below error, entries are sampled per second
// once the configured initial burst is exceeded.
//
// Tests use NewTestLogger and its assertion helpers.
package logging
