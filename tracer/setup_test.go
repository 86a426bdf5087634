package tracer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestNewClient_NoExport(t *testing.T) {
	cfg := Config{
		ServiceName:  "test-service",
		AppEnv:       "test",
		EnableExport: false,
	}

	client, err := NewClient(cfg)

	require.NoError(t, err)
	require.NotNil(t, client.provider)
	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	ctx, span := client.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	assert.True(t, span.IsRecording())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))
}

func TestNewClient_EnableExport_NoCollector(t *testing.T) {
	cfg := Config{
		ServiceName:  "test-service",
		AppEnv:       "production",
		EnableExport: true,
		Endpoint:     "127.0.0.1:4318",
		Insecure:     true,
	}

	// The OTLP HTTP exporter connects lazily, so NewClient succeeds even without a collector.
	client, err := NewClient(cfg)

	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNewClient_EnableExport_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{
		ServiceName:  "test-service",
		AppEnv:       "test",
		EnableExport: true,
	}

	client, err := newClientWithContext(ctx, cfg)

	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestShutdown_NilSafe(t *testing.T) {
	var client *TracerClient
	assert.NoError(t, client.Shutdown(context.Background()))
}
