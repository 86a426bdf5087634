package openapm

import (
	"context"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aalemi-dev/openapm/events"
	"github.com/aalemi-dev/openapm/httpapm"
	"github.com/aalemi-dev/openapm/metrics"
	"github.com/aalemi-dev/openapm/requeststore"
	"github.com/aalemi-dev/openapm/shim"
)

// Logger is the subset of logger.Logger used by the agent.
type Logger interface {
	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// APM is the agent: it owns the metrics registry and listener, turns adapter
// observations into series, and emits lifecycle events.
//
// Its lifecycle is New, Start, any number of Instrument calls, Shutdown.
type APM struct {
	cfg       Config
	metrics   *metrics.Metrics
	requests  requestSinks
	pathMasks []*regexp.Regexp
	emitter   *events.Emitter
	eventMeta events.Metadata
	lifecycle *lifecycle
	spans     trace.Tracer
	logger    Logger
	client    *http.Client

	mu           sync.Mutex
	handles      map[Integration]any
	instrumented map[Integration]bool

	closed   atomic.Bool
	shutdown sync.Once
}

// Option customises New.
type Option func(*APM)

// WithLogger sets the logger for the agent and for the packages it drives.
func WithLogger(l Logger) Option {
	return func(a *APM) {
		a.logger = l
	}
}

// WithTracer makes the adapters start a span per request, query and round
// trip.
func WithTracer(t trace.Tracer) Option {
	return func(a *APM) {
		a.spans = t
	}
}

// WithModule provides the handle for integration, as Provide does.
func WithModule(integration Integration, handle any) Option {
	return func(a *APM) {
		a.handles[integration] = handle
	}
}

// WithHTTPClient sets the client used to forward lifecycle events.
func WithHTTPClient(c *http.Client) Option {
	return func(a *APM) {
		a.client = c
	}
}

// New builds an agent from cfg. Nothing listens until Start.
//
// Parameters:
//   - cfg: endpoint, labels and integrations; zero fields take defaults
//   - opts: logger, tracer, library handles, event client
//
// Returns:
//   - *APM: the agent, with the request sinks registered
//   - error: for an invalid extraction rule or path mask, or an unusable
//     event forwarder configuration
//
// Example:
//
//	apm, err := openapm.New(openapm.Config{
//	    AdditionalLabels: []string{"tenant"},
//	    ExtractLabels: map[string]openapm.ExtractRule{
//	        "user": {From: openapm.SourceParams, Key: "id", Mask: ":user"},
//	    },
//	}, openapm.WithModule(openapm.HTTP, srv))
//	if err != nil {
//	    return err
//	}
//	if err := apm.Start(ctx); err != nil {
//	    return err
//	}
//	defer apm.Shutdown(context.Background())
//	if _, err := apm.Instrument(openapm.HTTP); err != nil {
//	    return err
//	}
func New(cfg Config, opts ...Option) (*APM, error) {
	cfg = cfg.withDefaults()
	if err := validateRules(cfg.ExtractLabels); err != nil {
		return nil, err
	}
	masks, err := compileMasks(cfg.PathMasks)
	if err != nil {
		return nil, err
	}

	a := &APM{
		cfg:          cfg,
		pathMasks:    masks,
		emitter:      events.NewEmitter(),
		handles:      make(map[Integration]any),
		instrumented: make(map[Integration]bool),
	}
	a.lifecycle = &lifecycle{a: a}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	labels := constLabels(cfg)
	a.metrics = metrics.NewMetrics(metrics.Config{
		Address:        cfg.address(),
		Path:           cfg.Path,
		ConstLabels:    labels,
		RuntimeMetrics: !cfg.DisableRuntimeMetrics && !cfg.Disabled,
	})
	a.eventMeta = events.Metadata{
		Program:        cfg.ServiceName,
		Environment:    cfg.Environment,
		Workspace:      hostname(),
		DataSourceName: cfg.Levitate.DataSourceName,
	}

	if a.logger != nil {
		shim.SetLogger(a.logger)
		a.metrics.WithLogger(a.logger)
		a.emitter.WithLogger(a.logger)
	}

	names, dropped := requestLabelNames(cfg, labels)
	if len(dropped) > 0 {
		a.logWarn(context.Background(), "request labels shadowed by default labels are ignored", nil, map[string]interface{}{
			"labels": dropped,
		})
	}
	if a.requests.total, err = a.metrics.CreateCounter(RequestsTotal, "Counts total number of requests", names); err != nil {
		return nil, err
	}
	if a.requests.duration, err = a.metrics.CreateHistogram(RequestsDuration, "Duration of HTTP requests in milliseconds", names, DurationBuckets); err != nil {
		return nil, err
	}

	// A half-configured forwarder is an error rather than silently off.
	if (cfg.Levitate.OrgSlug != "" || cfg.Levitate.RefreshToken != "") && !cfg.Disabled {
		fwd, err := events.NewForwarder(cfg.Levitate, a.client)
		if err != nil {
			return nil, err
		}
		a.emitter.On(events.ApplicationStarted, fwd.Listener())
		a.emitter.On(events.ApplicationStopped, fwd.Listener())
	}
	return a, nil
}

// Config returns the configuration with defaults applied.
func (a *APM) Config() Config {
	return a.cfg
}

// Start binds the metrics listener. It does nothing when the agent is
// disabled.
func (a *APM) Start(ctx context.Context) error {
	if a.closed.Load() {
		return ErrShutdown
	}
	if a.cfg.Disabled {
		return nil
	}
	if err := a.metrics.Start(); err != nil {
		a.logError(ctx, "failed to start metrics listener", err)
		return err
	}
	return nil
}

// Addr returns the bound metrics listener address as host:port, or "" before
// Start.
func (a *APM) Addr() string {
	addr := a.metrics.Addr()
	if addr == nil {
		return ""
	}
	return addr.String()
}

// Middleware returns HTTP middleware recording every request it wraps, for
// handlers that are not served by an instrumented *http.Server. It passes
// requests through untouched when the agent is disabled.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("GET /orders/{id}", getOrder)
//	handler := apm.Middleware()(mux)
func (a *APM) Middleware() func(http.Handler) http.Handler {
	if a.cfg.Disabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httpapm.Middleware(a.RequestObserver(), a.httpOptions()...)
}

// Metrics renders the current exposition text, or "" when the agent is
// disabled.
func (a *APM) Metrics(ctx context.Context) (string, error) {
	if a.cfg.Disabled {
		return "", nil
	}
	return a.metrics.Text(ctx)
}

// Registry returns the agent's metrics, to register application collectors
// next to the agent's own series.
func (a *APM) Registry() *metrics.Metrics {
	return a.metrics
}

// Shutdown reports application_stopped if the start was reported, closes the
// metrics listener, clears the registry and waits for pending event
// deliveries. Only the first call does any work.
func (a *APM) Shutdown(ctx context.Context) error {
	var err error
	a.shutdown.Do(func() {
		a.lifecycle.stopIfStarted(ctx)
		a.closed.Store(true)
		a.releaseDrivers()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return a.metrics.Shutdown(gctx)
		})
		g.Go(func() error {
			return a.emitter.Wait(gctx)
		})
		if err = g.Wait(); err != nil {
			a.logError(ctx, "agent shutdown failed", err)
			return
		}
		a.logInfo(ctx, "agent shut down", map[string]interface{}{
			"integrations": a.instrumentedNames(),
		})
	})
	return err
}

func (a *APM) recording() bool {
	return !a.cfg.Disabled && !a.closed.Load()
}

func (a *APM) instrumentedNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.instrumented))
	for name := range a.instrumented {
		names = append(names, string(name))
	}
	return names
}

// SetLabels adds labels to the request being handled on ctx. Values are
// formatted with their natural string form. Outside an instrumented request
// it does nothing.
//
// Example:
//
//	func getOrder(w http.ResponseWriter, r *http.Request) {
//	    openapm.SetLabels(r.Context(), map[string]any{"tenant": tenantOf(r)})
//	}
func SetLabels(ctx context.Context, labels map[string]any) {
	requeststore.SetLabels(ctx, labels)
}

func (a *APM) logDebug(ctx context.Context, msg string, fields map[string]interface{}) {
	if a.logger != nil {
		a.logger.DebugWithContext(ctx, msg, nil, fields)
	}
}

func (a *APM) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if a.logger != nil {
		a.logger.InfoWithContext(ctx, msg, nil, fields)
	}
}

func (a *APM) logWarn(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if a.logger != nil {
		a.logger.WarnWithContext(ctx, msg, err, fields)
	}
}

func (a *APM) logError(ctx context.Context, msg string, err error) {
	if a.logger != nil {
		a.logger.ErrorWithContext(ctx, msg, err)
	}
}
