package logger

// Log levels accepted by Config.Level.
const (
	// Debug logs every wrap decision and every forwarded event.
	Debug = "debug"

	// Info logs lifecycle messages: listener started, integration instrumented.
	Info = "info"

	// Warning logs only skipped wraps, failed deliveries and errors.
	Warning = "warning"

	// Error logs only failures that could not be returned to a caller.
	Error = "error"
)

// Config defines how the agent's own log output is produced.
type Config struct {
	// Level is the minimum level written. Unknown values fall back to "info".
	//
	// This setting can be configured via:
	//   - YAML configuration with the "level" key
	//   - Environment variable OPENAPM_LOG_LEVEL
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`

	// EnableTracing adds trace_id and span_id fields to entries logged with a
	// context that carries a recording span.
	//
	// This setting can be configured via:
	//   - YAML configuration with the "enable_tracing" key
	//   - Environment variable OPENAPM_LOG_ENABLE_TRACING
	EnableTracing bool `yaml:"enable_tracing" envconfig:"LOG_ENABLE_TRACING"`

	// ServiceName populates the "service" field of every entry.
	ServiceName string `yaml:"service_name" envconfig:"LOG_SERVICE_NAME"`

	// CallerSkip is the number of stack frames skipped when reporting the
	// caller. Defaults to 1, which reports the code calling LoggerClient.
	CallerSkip int `yaml:"caller_skip" envconfig:"LOG_CALLER_SKIP"`
}
