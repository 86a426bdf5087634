package openapm

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/aalemi-dev/openapm/gormapm"
	"github.com/aalemi-dev/openapm/grpcapm"
	"github.com/aalemi-dev/openapm/httpapm"
	"github.com/aalemi-dev/openapm/httpclientapm"
	"github.com/aalemi-dev/openapm/observability"
	"github.com/aalemi-dev/openapm/sqlapm"
)

// Integration names one supported library.
type Integration string

// Supported integrations and the handle each one expects from Provide.
const (
	// HTTP expects the *http.Server whose handler is timed.
	HTTP Integration = "net/http"

	// HTTPClient expects the *http.Client whose round trips are timed.
	HTTPClient Integration = "http-client"

	// MySQL expects the MySQL driver.Driver, usually &mysql.MySQLDriver{}.
	MySQL Integration = "mysql"

	// Postgres expects the PostgreSQL driver.Driver, usually &pq.Driver{}.
	Postgres Integration = "postgres"

	// Gorm expects the *gorm.DB whose statements are timed.
	Gorm Integration = "gorm"

	// GRPC expects the *grpcapm.Factory used to build servers.
	GRPC Integration = "grpc"
)

var packages = map[Integration]string{
	HTTP:       "net/http",
	HTTPClient: "net/http",
	MySQL:      "github.com/go-sql-driver/mysql",
	Postgres:   "github.com/lib/pq",
	Gorm:       "gorm.io/gorm",
	GRPC:       "google.golang.org/grpc",
}

// Package returns the import path the integration depends on, or "" for an
// unsupported integration.
func (i Integration) Package() string {
	return packages[i]
}

// Provide hands the agent the library handle for integration. It replaces
// any handle provided earlier.
//
// Example:
//
//	apm.Provide(openapm.MySQL, &mysql.MySQLDriver{})
//	if _, err := apm.Instrument(openapm.MySQL); err != nil {
//	    return err
//	}
//	db, err := sql.Open(openapm.DriverName(openapm.MySQL), dsn)
func (a *APM) Provide(integration Integration, handle any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handles[integration] = handle
}

// Instrument installs the integration's adapter on the provided handle.
//
// It returns (false, nil) when the agent is disabled or when the adapter
// could not be installed; the latter is logged and leaves the library
// untouched. An unknown name returns ErrUnsupportedIntegration and a missing
// or mistyped handle a *MissingDependencyError. Calling it again for the same
// handle does not add a second layer.
func (a *APM) Instrument(integration Integration) (bool, error) {
	if a.cfg.Disabled {
		return false, nil
	}
	if a.closed.Load() {
		return false, ErrShutdown
	}
	pkg, ok := packages[integration]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnsupportedIntegration, integration)
	}

	a.mu.Lock()
	handle := a.handles[integration]
	a.mu.Unlock()

	install, ok := a.installer(integration, handle)
	if !ok {
		return false, &MissingDependencyError{Integration: integration, Package: pkg}
	}

	ctx := context.Background()
	if err := install(); err != nil {
		a.logWarn(ctx, "failed to instrument integration", err, map[string]interface{}{
			"integration": string(integration),
		})
		return false, nil
	}

	a.mu.Lock()
	a.instrumented[integration] = true
	a.mu.Unlock()
	a.logInfo(ctx, "integration instrumented", map[string]interface{}{
		"integration": string(integration),
	})
	return true, nil
}

// installer matches handle against the integration's expected type.
func (a *APM) installer(integration Integration, handle any) (func() error, bool) {
	switch integration {
	case HTTP:
		srv, ok := handle.(*http.Server)
		if !ok || srv == nil {
			return nil, false
		}
		return func() error {
			return httpapm.Instrument(srv, a.RequestObserver(), a.Lifecycle(), a.httpOptions()...)
		}, true

	case HTTPClient:
		client, ok := handle.(*http.Client)
		if !ok || client == nil {
			return nil, false
		}
		return func() error {
			var opts []func(*httpclientapm.Transport)
			if a.spans != nil {
				opts = append(opts, httpclientapm.WithTracer(a.spans))
			}
			return httpclientapm.Instrument(client, a.OperationObserver(), opts...)
		}, true

	case MySQL, Postgres:
		d, ok := handle.(driver.Driver)
		if !ok || d == nil {
			return nil, false
		}
		return func() error {
			return a.registerDriver(integration, d)
		}, true

	case Gorm:
		db, ok := handle.(*gorm.DB)
		if !ok || db == nil {
			return nil, false
		}
		return func() error {
			return gormapm.Instrument(db, a.OperationObserver())
		}, true

	case GRPC:
		factory, ok := handle.(*grpcapm.Factory)
		if !ok || factory == nil || *factory == nil {
			return nil, false
		}
		return func() error {
			var opts []grpcapm.Option
			if a.spans != nil {
				opts = append(opts, grpcapm.WithTracer(a.spans))
			}
			return grpcapm.Instrument(factory, a.RequestObserver(), a.Lifecycle(), opts...)
		}, true
	}
	return nil, false
}

func (a *APM) httpOptions() []httpapm.Option {
	if a.spans == nil {
		return nil
	}
	return []httpapm.Option{httpapm.WithTracer(a.spans)}
}

// database/sql registrations cannot be undone, so there is one instrumented
// driver per SQL integration for the whole process. Its observations go to
// the agent that instrumented it last, until that agent shuts down.
var sqlDrivers = struct {
	mu    sync.Mutex
	insts map[Integration]*sqlapm.Instrumenter
	route atomic.Pointer[APM]
}{insts: make(map[Integration]*sqlapm.Instrumenter)}

// DriverName returns the database/sql driver name under which Instrument
// registers the integration's instrumented driver: "openapm-mysql" or
// "openapm-postgres".
func DriverName(integration Integration) string {
	return "openapm-" + string(integration)
}

type sqlRoute struct{}

func (sqlRoute) ObserveOperation(ctx context.Context, op observability.OperationContext) {
	if a := sqlDrivers.route.Load(); a != nil {
		a.observeOperation(ctx, op)
	}
}

func (a *APM) registerDriver(integration Integration, d driver.Driver) error {
	sqlDrivers.mu.Lock()
	defer sqlDrivers.mu.Unlock()

	inst, ok := sqlDrivers.insts[integration]
	if !ok {
		var opts []sqlapm.Option
		if a.spans != nil {
			opts = append(opts, sqlapm.WithTracer(a.spans))
		}
		inst = sqlapm.NewInstrumenter(string(integration), sqlRoute{}, opts...)
	}
	if err := inst.Register(DriverName(integration), d); err != nil {
		return err
	}
	sqlDrivers.insts[integration] = inst
	sqlDrivers.route.Store(a)
	return nil
}

// releaseDrivers stops routing SQL observations to a.
func (a *APM) releaseDrivers() {
	sqlDrivers.route.CompareAndSwap(a, nil)
}

// Cluster returns a pool cluster over the integration's instrumented driver,
// configured with Config.Pool. Instrument the integration first.
//
// Example:
//
//	cluster := apm.Cluster(openapm.MySQL)
//	_ = cluster.Add("primary", primaryDSN)
//	_ = cluster.Add("replica", replicaDSN)
//	db, err := cluster.Of("replica")
func (a *APM) Cluster(integration Integration) *sqlapm.Cluster {
	return sqlapm.NewCluster(DriverName(integration), a.cfg.Pool)
}
