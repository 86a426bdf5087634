package metrics

// Defaults applied by NewMetrics when the corresponding Config field is empty.
const (
	DefaultAddress = ":9097"
	DefaultPath    = "/metrics"
)

// ContentType is the media type of the text exposition served on the
// metrics path.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Config defines the metrics registry and the listener that exposes it.
type Config struct {
	// Address is the network address the metrics listener binds to.
	//
	// Example values:
	//   - ":9097"           → all interfaces, port 9097
	//   - "127.0.0.1:0"     → localhost, random port (see Metrics.Addr)
	//
	// Default: ":9097"
	Address string `yaml:"address" envconfig:"METRICS_ADDRESS"`

	// Path is the only path answered by the listener. Every other path or
	// method gets a 404.
	//
	// Default: "/metrics"
	Path string `yaml:"path" envconfig:"METRICS_PATH"`

	// ConstLabels are attached to every series in the registry, for example
	// environment, program, version, host and ip.
	ConstLabels map[string]string `yaml:"const_labels"`

	// RuntimeMetrics registers the Go runtime and process collectors.
	RuntimeMetrics bool `yaml:"runtime_metrics" envconfig:"METRICS_RUNTIME"`
}
