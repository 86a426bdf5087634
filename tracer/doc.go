// Package tracer sets up the OpenTelemetry tracer provider used by the
// instrumentation adapters.
//
// Adapters accept a plain trace.Tracer and default to a no-op one, so tracing
// costs nothing unless a provider is configured:
//
//	tc, err := tracer.NewClient(tracer.Config{
//	    ServiceName:  "checkout",
//	    AppEnv:       "production",
//	    EnableExport: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer tc.Shutdown(context.Background())
//
//	apm, err := openapm.New(cfg, openapm.WithTracer(tc.Tracer("github.com/aalemi-dev/openapm")))
//
// NewClient also installs the W3C trace-context and baggage propagators
// globally. The HTTP middleware extracts incoming trace context with them and
// the HTTP client transport injects it into outbound requests.
//
// The logger package reads the span from a context to add trace_id and
// span_id to entries, which ties agent logs to the request being traced.
package tracer
