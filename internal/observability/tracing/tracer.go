package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// GetTracer returns the engage-notify tracer from the global provider.
// It is looked up on each call so a provider installed after package init
// (for example in tests) is honored.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "dispatch.order_shipped")
//	defer span.End()
func GetTracer() trace.Tracer {
	return otel.Tracer("engage-notify")
}
