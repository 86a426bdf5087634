package openapm

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/aalemi-dev/openapm/events"
	"github.com/aalemi-dev/openapm/sqlapm"
)

// Defaults applied by New when the corresponding Config field is empty.
const (
	DefaultPath        = "/metrics"
	DefaultPort        = 9097
	DefaultEnvironment = "production"
)

// SourceParams is the only ExtractRule source: a named route parameter.
const SourceParams = "params"

// ExtractRule copies a route parameter into its own label.
type ExtractRule struct {
	// From is where the value comes from. Only "params" is supported.
	From string `yaml:"from"`

	// Key is the route parameter name, "id" for the route "/users/{id}".
	Key string `yaml:"key"`

	// Mask, when set, replaces the parameter in the path label, so the
	// value is only carried by the extracted label.
	Mask string `yaml:"mask"`
}

// Config defines the agent's metrics endpoint, labels and integrations.
//
// The zero value is a working configuration: metrics on :9097/metrics,
// environment "production", runtime metrics enabled.
type Config struct {
	// Disabled turns the agent into a no-op. Instrument reports false and
	// Metrics returns "".
	Disabled bool `yaml:"disabled" envconfig:"OPENAPM_DISABLED"`

	// Path is where the exposition is served.
	//
	// Default: "/metrics"
	Path string `yaml:"path" envconfig:"OPENAPM_METRICS_PATH"`

	// Port is the metrics listener port on all interfaces.
	//
	// Default: 9097
	Port int `yaml:"port" envconfig:"OPENAPM_METRICS_PORT"`

	// MetricsAddress overrides Port with a full listen address, for example
	// "127.0.0.1:0".
	MetricsAddress string `yaml:"metrics_address" envconfig:"OPENAPM_METRICS_ADDRESS"`

	// Environment is reported as the environment label and as the event
	// namespace.
	//
	// Default: "production"
	Environment string `yaml:"environment" envconfig:"OPENAPM_ENVIRONMENT"`

	// ServiceName is reported as the program label and names lifecycle
	// events ("<service>_app"). Defaults to the main module's last path
	// element.
	ServiceName string `yaml:"service_name" envconfig:"OPENAPM_SERVICE_NAME"`

	// DefaultLabels are added to every series and override the built-in
	// environment, program, version, host and ip labels.
	DefaultLabels map[string]string `yaml:"default_labels" envconfig:"OPENAPM_DEFAULT_LABELS"`

	// ExcludeDefaultLabels removes built-in labels by name.
	ExcludeDefaultLabels []string `yaml:"exclude_default_labels" envconfig:"OPENAPM_EXCLUDE_DEFAULT_LABELS"`

	// AdditionalLabels declares labels that request handlers set with
	// SetLabels. Only declared labels are recorded.
	AdditionalLabels []string `yaml:"additional_labels" envconfig:"OPENAPM_ADDITIONAL_LABELS"`

	// ExtractLabels maps a label name to the route parameter it is read
	// from.
	ExtractLabels map[string]ExtractRule `yaml:"extract_labels" ignored:"true"`

	// PathMasks are extra regular expressions; path segments matching any
	// of them are masked when no route template is known.
	PathMasks []string `yaml:"path_masks" envconfig:"OPENAPM_PATH_MASKS"`

	// DisableRuntimeMetrics skips the Go runtime and process collectors.
	DisableRuntimeMetrics bool `yaml:"disable_runtime_metrics" envconfig:"OPENAPM_DISABLE_RUNTIME_METRICS"`

	// Pool configures the pools opened by Cluster.
	Pool sqlapm.PoolConfig `yaml:"pool" envconfig:"OPENAPM"`

	// Levitate enables forwarding lifecycle events when OrgSlug and
	// RefreshToken are set.
	Levitate events.ForwarderConfig `yaml:"levitate" envconfig:"OPENAPM"`
}

// address returns the metrics listen address.
func (c Config) address() string {
	if c.MetricsAddress != "" {
		return c.MetricsAddress
	}
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.ServiceName == "" {
		c.ServiceName = programName()
	}
	return c
}

// LoadConfig reads the YAML file at path, when path is not empty, and then
// applies environment overrides such as OPENAPM_METRICS_PORT and
// OPENAPM_LEVITATE_REFRESH_TOKEN.
//
// Example:
//
//	cfg, err := openapm.LoadConfig("openapm.yaml")
//	if err != nil {
//	    return err
//	}
//	apm, err := openapm.New(cfg)
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return cfg, nil
}
