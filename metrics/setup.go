package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Logger is the subset of logger.Logger used by Metrics.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// Metrics owns a Prometheus registry, the sinks created in it, and the HTTP
// listener that exposes it.
//
// Sinks are created lazily by name: asking twice for the same metric returns
// the same sink, so independent adapters can share one without coordinating.
type Metrics struct {
	// Registry is the registry every sink and collector is registered in.
	Registry *prometheus.Registry

	// Server serves the text exposition on the configured path.
	Server *http.Server

	cfg        Config
	registerer prometheus.Registerer
	logger     Logger

	mu        sync.Mutex
	sinks     map[string]sink
	runtime   []prometheus.Collector
	listener  net.Listener
	serveDone chan struct{}
}

type sink struct {
	collector prometheus.Collector
	value     any
	kind      string
	names     []string
}

// NewMetrics builds the registry and an unstarted listener.
//
// Parameters:
//   - cfg: listener address and path, constant labels, runtime collectors
//
// Returns:
//   - *Metrics: ready for CreateCounter / CreateHistogram and Start
//
// Example:
//
//	m := metrics.NewMetrics(metrics.Config{
//	    Address:     ":9097",
//	    ConstLabels: map[string]string{"environment": "production"},
//	})
//	requests, _ := m.CreateCounter("http_requests_total", "Total HTTP requests", []string{"path", "method", "status"})
//	requests.Inc(metrics.Labels{"path": "/", "method": "GET", "status": "200"})
//	if err := m.Start(); err != nil {
//	    return err
//	}
func NewMetrics(cfg Config) *Metrics {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry:   registry,
		cfg:        cfg,
		registerer: prometheus.WrapRegistererWith(prometheus.Labels(cfg.ConstLabels), registry),
		sinks:      make(map[string]sink),
	}
	m.Server = &http.Server{
		Addr:              cfg.Address,
		Handler:           m,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.RuntimeMetrics {
		m.registerRuntimeCollectors()
	}
	return m
}

// WithLogger attaches a logger for listener lifecycle messages.
func (m *Metrics) WithLogger(logger Logger) *Metrics {
	m.logger = logger
	return m
}

// Config returns the configuration with defaults applied.
func (m *Metrics) Config() Config {
	return m.cfg
}

// Start binds the listener and serves in a background goroutine. It returns
// once the address is bound, so a bind failure is reported here.
func (m *Metrics) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", m.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to bind metrics listener on %s: %w", m.cfg.Address, err)
	}
	m.listener = ln
	m.serveDone = make(chan struct{})

	m.logInfo(context.Background(), "metrics listener started", map[string]interface{}{
		"address": ln.Addr().String(),
		"path":    m.cfg.Path,
	})

	go func(done chan struct{}) {
		defer close(done)
		if err := m.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logError(context.Background(), "metrics listener stopped", err)
		}
	}(m.serveDone)

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (m *Metrics) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Shutdown stops the listener, if started, and empties the registry. It is
// safe to call on a Metrics that was never started and to call repeatedly.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	started := m.listener != nil
	done := m.serveDone
	m.listener = nil
	m.mu.Unlock()

	var err error
	if started {
		if err = m.Server.Shutdown(ctx); err != nil {
			err = fmt.Errorf("failed to shut down metrics listener: %w", err)
			m.logError(ctx, "metrics listener shutdown failed", err)
		} else {
			<-done
		}
	}

	m.Reset()
	return err
}

// Reset unregisters every sink and collector. Sinks handed out earlier keep
// working but are no longer exposed; the next Create call registers a fresh
// sink under the same name.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, s := range m.sinks {
		m.registerer.Unregister(s.collector)
		delete(m.sinks, name)
	}
	for _, c := range m.runtime {
		m.registerer.Unregister(c)
	}
	m.runtime = nil
}

func (m *Metrics) registerRuntimeCollectors() {
	m.runtime = []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range m.runtime {
		if err := m.registerer.Register(c); err != nil {
			m.logError(context.Background(), "failed to register runtime collector", err)
		}
	}
}

func (m *Metrics) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.InfoWithContext(ctx, msg, nil, fields)
	}
}

func (m *Metrics) logError(ctx context.Context, msg string, err error) {
	if m.logger != nil {
		m.logger.ErrorWithContext(ctx, msg, err)
	}
}
