package openapm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/aalemi-dev/openapm/events"
	"github.com/aalemi-dev/openapm/grpcapm"
	"github.com/aalemi-dev/openapm/internal/fakesql"
	"github.com/aalemi-dev/openapm/logger"
	"github.com/aalemi-dev/openapm/metrics"
)

var noDefaultLabels = []string{"environment", "program", "version", "host", "ip"}

func testConfig() Config {
	return Config{
		MetricsAddress:        "127.0.0.1:0",
		ServiceName:           "checkout",
		ExcludeDefaultLabels:  noDefaultLabels,
		DisableRuntimeMetrics: true,
	}
}

func newAPM(t *testing.T, cfg Config, opts ...Option) *APM {
	t.Helper()
	a, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

// value sums counter values or histogram sample counts of the series of
// family name whose labels include want.
func value(t *testing.T, a *APM, name string, want map[string]string) float64 {
	t.Helper()
	families, err := a.metrics.Registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, want) {
				continue
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				total += m.GetCounter().GetValue()
			case dto.MetricType_HISTOGRAM:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func routerMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/router/{id}", func(w http.ResponseWriter, r *http.Request) {
		SetLabels(r.Context(), map[string]any{"id": r.PathValue("id")})
		_, _ = io.WriteString(w, "ok")
	})
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		SetLabels(r.Context(), map[string]any{"user": "from-handler", "tenant": "acme"})
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func TestInstrumentHTTP_TwiceCountsEveryRequestOnce(t *testing.T) {
	t.Parallel()
	srv := &http.Server{Handler: routerMux()}
	a := newAPM(t, testConfig(), WithModule(HTTP, srv))

	ok, err := a.Instrument(HTTP)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = a.Instrument(HTTP)
	require.NoError(t, err)
	require.True(t, ok)

	for range 300 {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/router/17", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	labels := map[string]string{"path": "/api/router/:id", "method": "GET", "status": "200"}
	assert.Equal(t, 300.0, value(t, a, RequestsTotal, labels))
	assert.Equal(t, 300.0, value(t, a, RequestsDuration, labels))
	assert.Zero(t, value(t, a, RequestsTotal, map[string]string{"path": "/api/router/17"}))
}

func TestMiddleware_PropagatesHandlerLabels(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.AdditionalLabels = []string{"id"}
	a := newAPM(t, cfg)

	h := a.Middleware()(routerMux())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/router/123", nil))

	assert.Equal(t, 1.0, value(t, a, RequestsTotal, map[string]string{
		"path": "/api/router/:id",
		"id":   "123",
	}))

	text, err := a.Metrics(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, `id="123"`)
}

func TestMiddleware_ReplacesInvalidUTF8Labels(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.AdditionalLabels = []string{"tenant"}
	a := newAPM(t, cfg)

	h := a.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetLabels(r.Context(), map[string]any{"tenant": "caf\xe9"})
		w.WriteHeader(http.StatusOK)
	}))

	require.NotPanics(t, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/menu", nil))
	})
	assert.Equal(t, 1.0, value(t, a, RequestsTotal, map[string]string{"tenant": "caf\uFFFD"}))
}

func TestMiddleware_IsolatesConcurrentRequests(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.AdditionalLabels = []string{"tenant"}
	a := newAPM(t, cfg)

	var arrived sync.WaitGroup
	arrived.Add(2)
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /work", func(w http.ResponseWriter, r *http.Request) {
		tenant := r.URL.Query().Get("tenant")
		SetLabels(r.Context(), map[string]any{"tenant": tenant})
		arrived.Done()
		<-release
		SetLabels(r.Context(), map[string]any{"tenant": tenant})
	})
	h := a.Middleware()(mux)

	var done sync.WaitGroup
	for _, tenant := range []string{"one", "two"} {
		done.Add(1)
		go func() {
			defer done.Done()
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/work?tenant="+tenant, nil))
		}()
	}
	arrived.Wait()
	close(release)
	done.Wait()

	assert.Equal(t, 1.0, value(t, a, RequestsTotal, map[string]string{"path": "/work", "tenant": "one"}))
	assert.Equal(t, 1.0, value(t, a, RequestsTotal, map[string]string{"path": "/work", "tenant": "two"}))
	assert.Equal(t, 2.0, value(t, a, RequestsTotal, map[string]string{"path": "/work"}))
}

func TestMiddleware_ExtractionRules(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.ExtractLabels = map[string]ExtractRule{
		"user": {From: SourceParams, Key: "id", Mask: ":user"},
	}
	a := newAPM(t, cfg)

	h := a.Middleware()(routerMux())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/42", nil))

	assert.Equal(t, 1.0, value(t, a, RequestsTotal, map[string]string{
		"path":   "/users/:user",
		"user":   "42",
		"status": "204",
	}), "extracted labels win over handler labels")
	assert.Equal(t, []string{"path", "method", "status", "user"}, a.requests.total.LabelNames(),
		"undeclared handler labels are not recorded")
}

func TestMiddleware_MasksPathsWithoutRoute(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.PathMasks = []string{`^ord-\d+$`}
	a := newAPM(t, cfg)

	h := a.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	for _, target := range []string{"/api/router/17?debug=1", "/orders/ord-77#top"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodOptions, "/api/router/17", nil))

	assert.Equal(t, 1.0, value(t, a, RequestsTotal, map[string]string{"path": "/api/router/:id"}))
	assert.Equal(t, 1.0, value(t, a, RequestsTotal, map[string]string{"path": "/orders/:id"}))
	assert.Zero(t, value(t, a, RequestsTotal, map[string]string{"method": http.MethodOptions}),
		"unmatched pre-flight requests are skipped")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ExtractLabels = map[string]ExtractRule{"user": {From: "query", Key: "id"}}
	_, err := New(cfg)
	assert.ErrorContains(t, err, "unsupported source")

	cfg = testConfig()
	cfg.ExtractLabels = map[string]ExtractRule{"user": {From: SourceParams}}
	_, err = New(cfg)
	assert.ErrorContains(t, err, "empty key")

	cfg = testConfig()
	cfg.PathMasks = []string{"("}
	_, err = New(cfg)
	assert.ErrorContains(t, err, "invalid path mask")

	cfg = testConfig()
	cfg.Levitate = events.ForwarderConfig{RefreshToken: "x"}
	_, err = New(cfg)
	assert.ErrorIs(t, err, events.ErrForwarderConfig)
}

// The SQL tests share the process-wide driver registrations and must not run
// in parallel.

func TestInstrumentMySQL_LabelsFailureAndSuccess(t *testing.T) {
	a := newAPM(t, testConfig(), WithModule(MySQL, &fakesql.Driver{}))

	ok, err := a.Instrument(MySQL)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = a.Instrument(MySQL)
	require.NoError(t, err)
	require.True(t, ok)

	db, err := sql.Open(DriverName(MySQL), "app:secret@tcp(localhost:3306)/shop")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("INSERT INTO orders (id) VALUES (1)")
	require.NoError(t, err)
	_, err = db.Exec("SELECT * FROM FAIL_missing_table")
	require.ErrorIs(t, err, fakesql.ErrStatement)

	assert.Equal(t, 1.0, value(t, a, DBRequestsDuration, map[string]string{
		"database_name": "shop",
		"status":        StatusSuccess,
		"query":         "INSERT INTO orders (id) VALUES ($1)",
	}))
	assert.Equal(t, 1.0, value(t, a, DBRequestsDuration, map[string]string{
		"database_name": "shop",
		"status":        StatusFailure,
	}))
}

func TestCluster_UsesInstrumentedDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Pool.MaxOpenConns = 4
	a := newAPM(t, cfg)
	a.Provide(Postgres, &fakesql.Driver{})

	_, err := a.Instrument(Postgres)
	require.NoError(t, err)

	cluster := a.Cluster(Postgres)
	defer cluster.Close()
	require.NoError(t, cluster.Add("primary", "postgres://app@localhost:5432/orders"))

	db, err := cluster.Of("primary")
	require.NoError(t, err)
	assert.Equal(t, 4, db.Stats().MaxOpenConnections)

	var n int64
	require.NoError(t, db.QueryRow("SELECT 1").Scan(&n))
	assert.Equal(t, 1.0, value(t, a, DBRequestsDuration, map[string]string{
		"database_name": "orders",
		"status":        StatusSuccess,
	}))
}

func TestShutdown_StopsRoutingQueries(t *testing.T) {
	first := newAPM(t, testConfig(), WithModule(MySQL, &fakesql.Driver{}))
	_, err := first.Instrument(MySQL)
	require.NoError(t, err)
	require.NoError(t, first.Shutdown(context.Background()))

	db, err := sql.Open(DriverName(MySQL), "app@tcp(localhost:3306)/shop")
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec("DELETE FROM carts")
	require.NoError(t, err, "queries keep working after the agent is gone")

	assert.Nil(t, sqlDrivers.route.Load())
}

func TestInstrumentMySQL_ReplacesInvalidUTF8InQueries(t *testing.T) {
	a := newAPM(t, testConfig(), WithModule(MySQL, &fakesql.Driver{}))
	_, err := a.Instrument(MySQL)
	require.NoError(t, err)

	db, err := sql.Open(DriverName(MySQL), "app@tcp(localhost:3306)/shop")
	require.NoError(t, err)
	defer db.Close()

	require.NotPanics(t, func() {
		_, err = db.ExecContext(context.Background(), "UPDATE \"caf\xe9\" SET price = 4")
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, value(t, a, DBRequestsDuration, map[string]string{
		"database_name": "shop",
		"status":        StatusSuccess,
		"query":         "UPDATE \"caf\uFFFD\" SET price = $1",
	}))
}

func TestInstrument_Errors(t *testing.T) {
	t.Parallel()
	a := newAPM(t, testConfig())

	_, err := a.Instrument(MySQL)
	var missing *MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, MySQL, missing.Integration)
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.ErrorContains(t, err, "github.com/go-sql-driver/mysql")

	a.Provide(Gorm, "not a *gorm.DB")
	_, err = a.Instrument(Gorm)
	assert.ErrorContains(t, err, "gorm.io/gorm")

	_, err = a.Instrument(Integration("express"))
	assert.ErrorIs(t, err, ErrUnsupportedIntegration)
	assert.Equal(t, "", Integration("express").Package())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	a := newAPM(t, testConfig())
	require.NoError(t, a.Start(context.Background()))
	base := "http://" + a.Addr()

	a.Middleware()(routerMux()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/router/9", nil))

	resp, err := http.Get(base + DefaultPath)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, metrics.ContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="/api/router/:id",status="200"} 1`)

	resp, err = http.Get(base + "/other")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShutdown_WithoutIntegrations(t *testing.T) {
	t.Parallel()
	a, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	addr := a.Addr()

	require.NoError(t, a.Shutdown(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err, "listener is closed")
	assert.ErrorIs(t, a.Start(context.Background()), ErrShutdown)
	_, err = a.Instrument(HTTP)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestDisabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Disabled = true
	handler := routerMux()
	srv := &http.Server{Handler: handler}
	a := newAPM(t, cfg, WithModule(HTTP, srv))

	require.NoError(t, a.Start(context.Background()))
	assert.Empty(t, a.Addr())

	ok, err := a.Instrument(HTTP)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Same(t, handler, srv.Handler)

	a.Middleware()(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/router/1", nil))
	text, err := a.Metrics(context.Background())
	require.NoError(t, err)
	assert.Empty(t, text)
}

func startGRPC(t *testing.T, factory grpcapm.Factory) (*grpcapm.Server, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := factory()
	healthpb.RegisterHealthServer(srv, health.NewServer())
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func TestInstrumentGRPC_CountsCallsAndEmitsLifecycleOnce(t *testing.T) {
	t.Parallel()
	factory := grpcapm.Factory(grpcapm.NewServer)
	a := newAPM(t, testConfig(), WithModule(GRPC, &factory))

	var started, stopped atomic.Int32
	a.Emitter().On(events.ApplicationStarted, func(context.Context, events.Kind, events.DomainEvent) error {
		started.Add(1)
		return nil
	})
	a.Emitter().On(events.ApplicationStopped, func(context.Context, events.Kind, events.DomainEvent) error {
		stopped.Add(1)
		return nil
	})

	for range 2 {
		ok, err := a.Instrument(GRPC)
		require.NoError(t, err)
		require.True(t, ok)
	}

	srv, client := startGRPC(t, factory)
	for range 5 {
		_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		require.NoError(t, err)
	}
	srv.Stop()

	assert.Equal(t, 5.0, value(t, a, RequestsTotal, map[string]string{
		"path":   "/grpc.health.v1.Health/Check",
		"method": grpcapm.Method,
		"status": "OK",
	}))

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(1), stopped.Load(), "the server stop was already reported")
}

func TestInstrumentHTTPClient_RecordsFetches(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer upstream.Close()
	gone := httptest.NewServer(http.NotFoundHandler())
	goneURL := gone.URL
	gone.Close()

	client := &http.Client{}
	a := newAPM(t, testConfig(), WithModule(HTTPClient, client))
	_, err := a.Instrument(HTTPClient)
	require.NoError(t, err)

	resp, err := client.Post(upstream.URL+"/orders?id=1", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	_, err = client.Get(goneURL)
	require.Error(t, err)

	assert.Equal(t, 1.0, value(t, a, FetchRequestsTotal, map[string]string{
		"method": http.MethodPost,
		"status": "202",
		"origin": upstream.URL,
	}))
	assert.Equal(t, 1.0, value(t, a, FetchDuration, map[string]string{
		"status": FetchStatusNoAnswer,
		"origin": goneURL,
	}))
}

func TestLifecycle_ForwardsEventsOnce(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var received []events.DomainEvent
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v4/oauth/access_token", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "access"})
	})
	mux.HandleFunc("PUT /api/v4/organizations/acme/domain_events", func(_ http.ResponseWriter, r *http.Request) {
		var ev events.DomainEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			mu.Lock()
			received = append(received, ev)
			mu.Unlock()
		}
	})
	collector := httptest.NewServer(mux)
	defer collector.Close()

	cfg := testConfig()
	cfg.Environment = "staging"
	cfg.Levitate = events.ForwarderConfig{
		Host:           collector.URL,
		OrgSlug:        "acme",
		RefreshToken:   "refresh",
		DataSourceName: "prom-main",
	}
	a := newAPM(t, cfg, WithHTTPClient(collector.Client()))

	a.Lifecycle().ApplicationStarted(context.Background())
	a.Lifecycle().ApplicationStarted(context.Background())
	require.NoError(t, a.Shutdown(context.Background()))
	a.Lifecycle().ApplicationStopped(context.Background())
	require.NoError(t, a.Emitter().Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	states := []string{received[0].EventState, received[1].EventState}
	assert.ElementsMatch(t, []string{events.StateStart, events.StateStop}, states)
	assert.Equal(t, "checkout_app", received[0].EventName)
	assert.Equal(t, "staging", received[0].Namespace)
	assert.Equal(t, "prom-main", received[0].DataSourceName)
}

func TestConstLabels(t *testing.T) {
	t.Parallel()
	labels := constLabels(Config{
		Environment:          "staging",
		ServiceName:          "checkout",
		DefaultLabels:        map[string]string{"team": "payments", "environment": "qa"},
		ExcludeDefaultLabels: []string{"host", "ip"},
	})

	assert.Equal(t, "qa", labels["environment"])
	assert.Equal(t, "checkout", labels["program"])
	assert.Equal(t, "payments", labels["team"])
	assert.NotContains(t, labels, "host")
	assert.NotContains(t, labels, "ip")
}

func TestNew_DropsRequestLabelsShadowedByDefaults(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := testConfig()
	cfg.ExcludeDefaultLabels = nil
	cfg.AdditionalLabels = []string{"tenant", "environment", "tenant"}

	a := newAPM(t, cfg, WithLogger(logger.NewWithCore(core, logger.Config{})))

	assert.Equal(t, []string{"path", "method", "status", "tenant"}, a.requests.total.LabelNames())
	entries := logs.FilterMessage("request labels shadowed by default labels are ignored").All()
	require.Len(t, entries, 1)
}

func TestMissingDependencyError(t *testing.T) {
	t.Parallel()
	err := error(&MissingDependencyError{Integration: Postgres, Package: Postgres.Package()})
	assert.EqualError(t, err, "openapm: cannot instrument postgres: package github.com/lib/pq was not provided")
	assert.True(t, errors.Is(err, ErrMissingDependency))
}

func TestInstaller_AcceptsLibraryHandles(t *testing.T) {
	t.Parallel()
	a := newAPM(t, testConfig())
	factory := grpcapm.Factory(grpcapm.NewServer)

	accepted := map[Integration]any{
		HTTP:       &http.Server{},
		HTTPClient: &http.Client{},
		MySQL:      &mysql.MySQLDriver{},
		Postgres:   &pq.Driver{},
		GRPC:       &factory,
	}
	for integration, handle := range accepted {
		_, ok := a.installer(integration, handle)
		assert.True(t, ok, integration)
	}

	rejected := map[Integration]any{
		HTTP:     &http.Client{},
		MySQL:    nil,
		Postgres: "postgres://",
		Gorm:     (*http.Server)(nil),
		GRPC:     new(grpcapm.Factory),
	}
	for integration, handle := range rejected {
		_, ok := a.installer(integration, handle)
		assert.False(t, ok, integration)
	}
}
