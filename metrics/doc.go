// Package metrics holds the agent's Prometheus registry, the counters and
// histograms recorded into it, and the HTTP listener that exposes them.
//
// # Architecture
//
// This package follows the "accept interfaces, return structs" design pattern:
//   - MetricsCollector interface: the contract used by the openapm facade
//   - Metrics struct: concrete implementation, returned by NewMetrics
//   - FX module: provides both for dependency injection
//
// # Sinks
//
// Counters and histograms are addressed by a Labels map rather than by
// positional values. Each sink remembers the label names it was created with
// and projects every Labels map onto them: names it does not know are
// dropped, names that are missing become "". Callers can therefore build one
// label map per request and hand it to several sinks.
//
// Sinks are created lazily and cached by name:
//
//	m := metrics.NewMetrics(metrics.Config{})
//
//	requests, err := m.CreateCounter("http_requests_total", "Total number of requests", []string{"path", "method", "status"})
//	if err != nil {
//	    return err
//	}
//	requests.Inc(metrics.Labels{"path": "/api/router/:id", "method": "GET", "status": "200"})
//
//	// elsewhere: same sink
//	again, _ := m.CreateCounter("http_requests_total", "Total number of requests", []string{"path", "method", "status"})
//
// # Exposition
//
// Metrics is itself an http.Handler. GET on the configured path (default
// "/metrics") returns the text exposition with
//
//	Content-Type: text/plain; version=0.0.4; charset=utf-8
//
// and every other request receives a plain-text 404. Start binds the
// configured address (default ":9097") and serves in the background;
// Shutdown stops the listener and unregisters everything, so tests can reuse
// metric names.
//
// Constant labels from Config.ConstLabels are attached to every series. When
// Config.RuntimeMetrics is set, the Go runtime and process collectors are
// registered as well.
package metrics
