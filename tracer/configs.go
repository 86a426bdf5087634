package tracer

// Config defines the OpenTelemetry tracer provider used for request and
// query spans.
type Config struct {
	// ServiceName is recorded as the service.name resource attribute.
	ServiceName string `yaml:"service_name" envconfig:"TRACING_SERVICE_NAME"`

	// AppEnv is recorded as deployment.environment and environment.
	AppEnv string `yaml:"app_env" envconfig:"TRACING_APP_ENV"`

	// EnableExport sends spans to an OTLP/HTTP collector. The collector is
	// located through the standard OTEL_EXPORTER_OTLP_* environment variables
	// unless Endpoint is set. Without export, spans are still created so
	// trace ids reach logs and outbound headers.
	EnableExport bool `yaml:"enable_export" envconfig:"TRACING_ENABLE_EXPORT"`

	// Endpoint overrides the collector host:port.
	Endpoint string `yaml:"endpoint" envconfig:"TRACING_ENDPOINT"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure" envconfig:"TRACING_INSECURE"`
}
