// Package observability groups the logging, metrics, SLO and tracing
// helpers shared by cmd/api and cmd/worker.
//
// Subpackages:
//   - logging: slog construction and context propagation
//   - metrics: HTTP and database pool collectors
//   - slo: delivery success ratios derived from the delivery log
//   - tracing: OpenTelemetry tracer and HTTP server spans
package observability
