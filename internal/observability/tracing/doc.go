// Package tracing holds the OpenTelemetry helpers shared by the HTTP server,
// the dispatcher and the gateway client.
//
// Spans go to whatever provider is installed with otel.SetTracerProvider;
// without one they are no-ops.
package tracing
