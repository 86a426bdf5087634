package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerClient owns an OpenTelemetry TracerProvider and registers it, along
// with the W3C trace-context and baggage propagators, as the global default.
//
// It is safe for concurrent use.
type TracerClient struct {
	provider *sdktrace.TracerProvider
}

// NewClient builds the tracer provider.
//
// Parameters:
//   - cfg: service identity and export settings
//
// Returns:
//   - *TracerClient: the provider wrapper, already installed globally
//   - error: when the OTLP exporter cannot be created
//
// Example:
//
//	tc, err := tracer.NewClient(tracer.Config{ServiceName: "checkout", AppEnv: "production"})
//	if err != nil {
//	    return err
//	}
//	defer tc.Shutdown(context.Background())
//
//	apm, err := openapm.New(cfg, openapm.WithTracer(tc.Tracer("openapm")))
func NewClient(cfg Config) (*TracerClient, error) {
	return newClientWithContext(context.Background(), cfg)
}

func newClientWithContext(ctx context.Context, cfg Config) (*TracerClient, error) {
	var options []sdktrace.TracerProviderOption

	if cfg.EnableExport {
		var clientOpts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			clientOpts = append(clientOpts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(clientOpts...))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OTLP exporter: %w", err)
		}
		options = append(options, sdktrace.WithBatcher(exporter))
	}

	options = append(options, sdktrace.WithResource(resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.AppEnv),
		attribute.String("environment", cfg.AppEnv),
	)))

	tp := sdktrace.NewTracerProvider(options...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &TracerClient{provider: tp}, nil
}

// Tracer returns a tracer from the client's provider.
func (t *TracerClient) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.provider.Tracer(name, opts...)
}

// Provider returns the underlying provider.
func (t *TracerClient) Provider() trace.TracerProvider {
	return t.provider
}

// Shutdown flushes pending spans and stops the exporter.
func (t *TracerClient) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
