// Package telemetry sets up OpenTelemetry tracing and metrics for
// transcriptrag.
//
// Spans from the retrieval service, the vector stores and the HTTP API
// are exported over OTLP (gRPC by default, or http/protobuf) to a
// collector. Metrics use a periodic reader with cumulative temporality.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Telemetry failures never stop ingestion: if an exporter cannot be built
// the instance reports itself degraded and the global no-op providers stay
// in place.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
