package metrics

import "errors"

// ErrMetricConflict is returned when a sink name is reused with a different
// kind or different label names.
var ErrMetricConflict = errors.New("metric already registered with a different shape")
