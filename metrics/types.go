package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Labels maps label names to values for one observation. Names the sink was
// not created with are ignored; configured names missing from the map are
// recorded as "". Invalid UTF-8 in a value is replaced with U+FFFD.
type Labels map[string]string

// Counter is a monotonically increasing sink addressed by labels.
type Counter interface {
	// Inc increments the series selected by labels by 1.
	Inc(labels Labels)

	// Add adds val, which must be >= 0, to the series selected by labels.
	Add(labels Labels, val float64)

	// WithLabelValues increments by positional label values, in the order of
	// LabelNames.
	WithLabelValues(lvs ...string) prometheus.Counter

	// LabelNames returns the configured label names in order.
	LabelNames() []string
}

// Histogram records observations into buckets, per label combination.
type Histogram interface {
	// Observe adds val to the series selected by labels.
	Observe(labels Labels, val float64)

	// WithLabelValues selects a series by positional label values, in the
	// order of LabelNames.
	WithLabelValues(lvs ...string) prometheus.Observer

	// LabelNames returns the configured label names in order.
	LabelNames() []string
}

type counterVec struct {
	vec   *prometheus.CounterVec
	names []string
}

func (c *counterVec) Inc(labels Labels) {
	c.vec.WithLabelValues(project(c.names, labels)...).Inc()
}

func (c *counterVec) Add(labels Labels, val float64) {
	c.vec.WithLabelValues(project(c.names, labels)...).Add(val)
}

func (c *counterVec) WithLabelValues(lvs ...string) prometheus.Counter {
	return c.vec.WithLabelValues(validValues(lvs)...)
}

func (c *counterVec) LabelNames() []string {
	return append([]string(nil), c.names...)
}

type histogramVec struct {
	vec   *prometheus.HistogramVec
	names []string
}

func (h *histogramVec) Observe(labels Labels, val float64) {
	h.vec.WithLabelValues(project(h.names, labels)...).Observe(val)
}

func (h *histogramVec) WithLabelValues(lvs ...string) prometheus.Observer {
	return h.vec.WithLabelValues(validValues(lvs)...)
}

func (h *histogramVec) LabelNames() []string {
	return append([]string(nil), h.names...)
}

// project orders label values by names, substituting "" for missing ones.
func project(names []string, labels Labels) []string {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = validValue(labels[name])
	}
	return values
}

// validValues returns lvs with every value made valid UTF-8. The client
// panics on invalid label values, and those come from request data.
func validValues(lvs []string) []string {
	var out []string
	for i, v := range lvs {
		valid := validValue(v)
		if valid == v {
			continue
		}
		if out == nil {
			out = append([]string(nil), lvs...)
		}
		out[i] = valid
	}
	if out == nil {
		return lvs
	}
	return out
}

func validValue(v string) string {
	return strings.ToValidUTF8(v, "\uFFFD")
}
