package tracer

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Tracer hands out OpenTelemetry tracers backed by one provider.
//
// This interface is implemented by the concrete *TracerClient type.
type Tracer interface {
	// Tracer returns a named tracer, typically named after the adapter
	// package creating spans.
	Tracer(name string, opts ...trace.TracerOption) trace.Tracer

	// Shutdown flushes pending spans and releases the exporter.
	Shutdown(ctx context.Context) error
}
