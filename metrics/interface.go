package metrics

import "context"

// MetricsCollector creates label-addressed sinks and renders their current
// state.
//
// This interface is implemented by the concrete *Metrics type.
type MetricsCollector interface {
	// CreateCounter returns the named counter, registering it on first use.
	CreateCounter(name, help string, labels []string) (Counter, error)

	// CreateHistogram returns the named histogram, registering it on first
	// use.
	CreateHistogram(name, help string, labels []string, buckets []float64) (Histogram, error)

	// Text renders every registered metric in the text exposition format.
	Text(ctx context.Context) (string, error)
}
