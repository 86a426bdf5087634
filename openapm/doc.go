// Package openapm is the agent's entry point: it records request, query and
// outbound call metrics from the adapter packages into a Prometheus registry
// and serves them on a pull endpoint.
//
// # Architecture
//
// The adapters (httpapm, httpclientapm, sqlapm, gormapm, grpcapm) only time
// calls and report what they saw to an observer. APM is that observer. It
// turns each observation into label sets and records them:
//
//	http_requests_total{path,method,status,...}
//	http_requests_duration_milliseconds{path,method,status,...}
//	db_requests_duration_milliseconds{database_name,query,status}
//	fetch_requests_total{method,status,origin}
//	fetch_duration_milliseconds{method,status,origin}
//
// Every series also carries the default labels environment, program,
// version, host and ip.
//
// # Instrumenting a library
//
// The agent never imports a library on its own initiative. The caller hands
// it the resolved handle and then asks for the integration:
//
//	apm, err := openapm.New(cfg)
//	if err != nil {
//	    return err
//	}
//	apm.Provide(openapm.HTTP, srv)
//	apm.Provide(openapm.MySQL, &mysql.MySQLDriver{})
//	for _, name := range []openapm.Integration{openapm.HTTP, openapm.MySQL} {
//	    if _, err := apm.Instrument(name); err != nil {
//	        return err
//	    }
//	}
//	db, err := sql.Open(openapm.DriverName(openapm.MySQL), dsn)
//
// Instrument returns a *MissingDependencyError naming the package when no
// handle, or a handle of the wrong type, was provided. An adapter that cannot
// be installed is logged and reported as (false, nil) so the application
// keeps running uninstrumented.
//
// # Request labels
//
// For every completed request the path label is the matched route template
// ("/api/router/:id") when the router exposes one, and otherwise the raw path
// without query string with value-like segments masked. Configured
// extraction rules then copy route parameters into their own labels, and
// labels set by the handler with SetLabels are merged in. Extracted labels
// win over handler labels; path, method and status win over both. OPTIONS
// requests that matched no route are not recorded.
//
// Only label names declared in Config.AdditionalLabels or
// Config.ExtractLabels are kept, which bounds cardinality.
//
// # Lifecycle events
//
// Servers instrumented through the agent report application_started when
// they begin serving and application_stopped when they shut down, each once.
// When Config.Levitate carries an organisation and refresh token the events
// are forwarded to the collector; Emitter gives access to add other
// listeners.
//
// # Configuration
//
// LoadConfig reads a YAML file and applies OPENAPM_* environment overrides.
// FXModule wires the agent into a go.uber.org/fx application.
package openapm
