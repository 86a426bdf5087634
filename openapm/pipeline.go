package openapm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aalemi-dev/openapm/gormapm"
	"github.com/aalemi-dev/openapm/httpclientapm"
	"github.com/aalemi-dev/openapm/masking"
	"github.com/aalemi-dev/openapm/metrics"
	"github.com/aalemi-dev/openapm/observability"
	"github.com/aalemi-dev/openapm/sqlapm"
)

// Sink names.
const (
	RequestsTotal      = "http_requests_total"
	RequestsDuration   = "http_requests_duration_milliseconds"
	DBRequestsDuration = "db_requests_duration_milliseconds"
	FetchRequestsTotal = "fetch_requests_total"
	FetchDuration      = "fetch_duration_milliseconds"
)

// Status label values of the db and fetch sinks.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	// FetchStatusNoAnswer is recorded when a round trip failed before any
	// response arrived.
	FetchStatusNoAnswer = "error"
)

// DurationBuckets are the millisecond buckets of every histogram: 0.25ms
// growing by 1.5x over 31 buckets, about 48 seconds at the top.
var DurationBuckets = prometheus.ExponentialBuckets(0.25, 1.5, 31)

var (
	requestLabels = []string{"path", "method", "status"}
	dbLabels      = []string{"database_name", "query", "status"}
	fetchLabels   = []string{"method", "status", "origin"}
)

type requestSinks struct {
	total    metrics.Counter
	duration metrics.Histogram
}

// requestLabelNames is path, method, status, then the declared and extracted
// labels sorted, without duplicates or names taken by constant labels.
func requestLabelNames(cfg Config, constLabels map[string]string) (names, dropped []string) {
	var extra []string
	extra = append(extra, cfg.AdditionalLabels...)
	for name := range cfg.ExtractLabels {
		extra = append(extra, name)
	}
	sort.Strings(extra)

	names = slices.Clone(requestLabels)
	for _, name := range slices.Compact(extra) {
		switch {
		case name == "" || slices.Contains(names, name):
		case constLabels[name] != "":
			dropped = append(dropped, name)
		default:
			names = append(names, name)
		}
	}
	return names, dropped
}

func validateRules(rules map[string]ExtractRule) error {
	for name, rule := range rules {
		if rule.From != SourceParams {
			return fmt.Errorf("openapm: extract label %q: unsupported source %q", name, rule.From)
		}
		if rule.Key == "" {
			return fmt.Errorf("openapm: extract label %q: empty key", name)
		}
	}
	return nil
}

func compileMasks(patterns []string) ([]*regexp.Regexp, error) {
	masks := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("openapm: invalid path mask %q: %w", p, err)
		}
		masks = append(masks, re)
	}
	return masks, nil
}

// RequestObserver returns the observer fed by the HTTP and gRPC adapters.
func (a *APM) RequestObserver() observability.RequestObserver {
	return requestObserver{a}
}

// OperationObserver returns the observer fed by the SQL, gorm and HTTP client
// adapters.
func (a *APM) OperationObserver() observability.Observer {
	return operationObserver{a}
}

type requestObserver struct{ a *APM }

func (o requestObserver) ObserveRequest(ctx context.Context, req observability.RequestContext) {
	o.a.observeRequest(ctx, req)
}

type operationObserver struct{ a *APM }

func (o operationObserver) ObserveOperation(ctx context.Context, op observability.OperationContext) {
	o.a.observeOperation(ctx, op)
}

// requestLabelSet builds the labels for one completed request. It reports
// false for a request that must not be recorded.
func (a *APM) requestLabelSet(req observability.RequestContext) (metrics.Labels, bool) {
	if req.Method == http.MethodOptions && req.Route == "" {
		return nil, false
	}

	path := req.Route
	if path == "" {
		path = masking.MaskPath(masking.SanitizePath(req.Path), masking.DefaultReplacement, a.pathMasks...)
	}

	labels := make(metrics.Labels, len(req.Labels)+len(a.cfg.ExtractLabels)+3)
	for k, v := range req.Labels {
		labels[k] = v
	}
	for name, rule := range a.cfg.ExtractLabels {
		value := req.Param(rule.Key)
		if value == "" {
			continue
		}
		labels[name] = value
		if rule.Mask != "" {
			path = maskSegment(path, rule.Mask, value, ":"+rule.Key)
		}
	}

	labels["path"] = path
	labels["method"] = req.Method
	labels["status"] = req.Status
	return labels, true
}

// maskSegment replaces the path segments equal to any of values.
func maskSegment(path, mask string, values ...string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if s != "" && slices.Contains(values, s) {
			segments[i] = mask
		}
	}
	return strings.Join(segments, "/")
}

func (a *APM) observeRequest(_ context.Context, req observability.RequestContext) {
	if !a.recording() {
		return
	}
	labels, ok := a.requestLabelSet(req)
	if !ok {
		return
	}
	a.requests.total.Inc(labels)
	a.requests.duration.Observe(labels, milliseconds(req.Duration))
}

func (a *APM) observeOperation(ctx context.Context, op observability.OperationContext) {
	if !a.recording() {
		return
	}
	switch op.Component {
	case sqlapm.ComponentMySQL, sqlapm.ComponentPostgres, gormapm.Component:
		a.observeQuery(ctx, op)
	case httpclientapm.Component:
		a.observeFetch(ctx, op)
	}
}

func (a *APM) observeQuery(ctx context.Context, op observability.OperationContext) {
	hist, err := a.metrics.CreateHistogram(DBRequestsDuration, "Duration of DB transactions in milliseconds", dbLabels, DurationBuckets)
	if err != nil {
		a.logWarn(ctx, "failed to create db histogram", err, nil)
		return
	}
	status := StatusSuccess
	if op.Error != nil {
		status = StatusFailure
	}
	database := op.Resource
	if database == "" {
		database = sqlapm.UnknownDatabase
	}
	hist.Observe(metrics.Labels{
		"database_name": database,
		"query":         masking.MaskQuery(op.Statement, masking.DefaultQueryLength),
		"status":        status,
	}, milliseconds(op.Duration))
}

func (a *APM) observeFetch(ctx context.Context, op observability.OperationContext) {
	total, err := a.metrics.CreateCounter(FetchRequestsTotal, "Monitor the number of fetch requests made by the application to external services", fetchLabels)
	if err != nil {
		a.logWarn(ctx, "failed to create fetch counter", err, nil)
		return
	}
	duration, err := a.metrics.CreateHistogram(FetchDuration, "Monitor the duration of fetch requests made by the application to external services", fetchLabels, DurationBuckets)
	if err != nil {
		a.logWarn(ctx, "failed to create fetch histogram", err, nil)
		return
	}
	status := op.Status
	if status == "" {
		status = FetchStatusNoAnswer
	}
	labels := metrics.Labels{"method": op.Operation, "status": status, "origin": op.Resource}
	total.Inc(labels)
	duration.Observe(labels, milliseconds(op.Duration))
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
