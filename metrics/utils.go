package metrics

import (
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	kindCounter   = "counter"
	kindHistogram = "histogram"
)

// CreateCounter returns the counter registered under name, creating and
// registering it on first use.
//
// Asking again with the same name and label names returns the existing
// sink. A different kind or different label names yields ErrMetricConflict.
//
// Example:
//
//	counter, err := m.CreateCounter("http_requests_total", "Total HTTP requests", []string{"path", "method", "status"})
//	if err != nil {
//	    return err
//	}
//	counter.Inc(metrics.Labels{"path": "/health", "method": "GET", "status": "200"})
func (m *Metrics) CreateCounter(name, help string, labels []string) (Counter, error) {
	v, err := m.getOrCreate(name, kindCounter, labels, func() (prometheus.Collector, any) {
		vec := createCounterVec(name, help, labels)
		return vec, &counterVec{vec: vec, names: slices.Clone(labels)}
	})
	if err != nil {
		return nil, err
	}
	return v.(Counter), nil
}

// CreateHistogram returns the histogram registered under name, creating and
// registering it on first use with the given buckets.
//
// Example:
//
//	hist, err := m.CreateHistogram(
//	    "db_requests_duration_milliseconds",
//	    "Duration of DB transactions in milliseconds",
//	    []string{"database_name", "query", "status"},
//	    prometheus.ExponentialBuckets(0.25, 1.5, 31),
//	)
//	hist.Observe(metrics.Labels{"database_name": "orders", "status": "success"}, 4.2)
func (m *Metrics) CreateHistogram(name, help string, labels []string, buckets []float64) (Histogram, error) {
	v, err := m.getOrCreate(name, kindHistogram, labels, func() (prometheus.Collector, any) {
		vec := createHistogramVec(name, help, labels, buckets)
		return vec, &histogramVec{vec: vec, names: slices.Clone(labels)}
	})
	if err != nil {
		return nil, err
	}
	return v.(Histogram), nil
}

func (m *Metrics) getOrCreate(name, kind string, labels []string, build func() (prometheus.Collector, any)) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sinks[name]; ok {
		if existing.kind != kind || !slices.Equal(existing.names, labels) {
			return nil, fmt.Errorf("%w: %s already registered as %s%v", ErrMetricConflict, name, existing.kind, existing.names)
		}
		return existing.value, nil
	}

	collector, value := build()
	if err := m.registerer.Register(collector); err != nil {
		return nil, fmt.Errorf("failed to register %s %s: %w", kind, name, err)
	}
	m.sinks[name] = sink{
		collector: collector,
		value:     value,
		kind:      kind,
		names:     slices.Clone(labels),
	}
	return value, nil
}

// createCounterVec defines a new CounterVec with standard options.
func createCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}

// createHistogramVec defines a new HistogramVec with configurable buckets.
func createHistogramVec(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: buckets,
		},
		labels,
	)
}
