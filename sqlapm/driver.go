package sqlapm

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aalemi-dev/openapm/masking"
	"github.com/aalemi-dev/openapm/observability"
)

// Component names used in OperationContext.Component.
const (
	ComponentMySQL    = "mysql"
	ComponentPostgres = "postgres"
)

// Operation names used in OperationContext.Operation.
const (
	OperationQuery = "query"
	OperationExec  = "exec"
)

// Instrumenter wraps database/sql drivers so that every statement run on a
// connection they open is timed and reported to an Observer.
//
// One Instrumenter keeps exactly one wrapper per driver type: wrapping the
// same driver twice returns the first wrapper, and wrapping a wrapper returns
// it unchanged.
type Instrumenter struct {
	observer     observability.Observer
	component    string
	databaseName func(dsn string) string
	tracer       trace.Tracer

	mu      sync.Mutex
	drivers map[reflect.Type]*Driver
	names   map[string]*Driver
}

// Option configures an Instrumenter.
type Option func(*Instrumenter)

// WithTracer starts a client span around every statement.
func WithTracer(tracer trace.Tracer) Option {
	return func(i *Instrumenter) {
		i.tracer = tracer
	}
}

// WithDatabaseName overrides how the database name is read from a DSN.
func WithDatabaseName(fn func(dsn string) string) Option {
	return func(i *Instrumenter) {
		if fn != nil {
			i.databaseName = fn
		}
	}
}

// NewInstrumenter creates an Instrumenter reporting under component. For
// ComponentMySQL and ComponentPostgres the database name is parsed from the
// DSN; for anything else it is UnknownDatabase unless WithDatabaseName is
// given.
func NewInstrumenter(component string, obs observability.Observer, opts ...Option) *Instrumenter {
	i := &Instrumenter{
		observer:     obs,
		component:    component,
		databaseName: databaseNameFunc(component),
		drivers:      make(map[reflect.Type]*Driver),
		names:        make(map[string]*Driver),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// Component returns the component name reported by this Instrumenter.
func (i *Instrumenter) Component() string {
	return i.component
}

// WrapDriver returns the instrumented wrapper for d.
func (i *Instrumenter) WrapDriver(d driver.Driver) driver.Driver {
	if d == nil {
		return nil
	}
	if w, ok := d.(*Driver); ok {
		return w
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.wrapLocked(d)
}

func (i *Instrumenter) wrapLocked(d driver.Driver) *Driver {
	t := reflect.TypeOf(d)
	if w, ok := i.drivers[t]; ok {
		return w
	}
	w := &Driver{base: d, inst: i}
	i.drivers[t] = w
	return w
}

// Register registers the wrapper for d with database/sql under name, so
// sql.Open(name, dsn) returns an instrumented pool. Registering the same
// name again through this Instrumenter is a no-op.
//
// Example:
//
//	inst := sqlapm.NewInstrumenter(sqlapm.ComponentMySQL, apm.OperationObserver())
//	if err := inst.Register("mysql-apm", &mysql.MySQLDriver{}); err != nil {
//	    return err
//	}
//	db, err := sql.Open("mysql-apm", dsn)
func (i *Instrumenter) Register(name string, d driver.Driver) error {
	if d == nil {
		return ErrNilDriver
	}
	if w, ok := d.(*Driver); ok {
		d = w.base
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.names[name]; ok {
		return nil
	}
	if slices.Contains(sql.Drivers(), name) {
		return ErrDriverNameTaken
	}
	w := i.wrapLocked(d)
	sql.Register(name, w)
	i.names[name] = w
	return nil
}

// WrapConnector returns a connector whose connections are instrumented, for
// use with sql.OpenDB. database is the name reported for its statements; an
// empty name is reported as UnknownDatabase.
func (i *Instrumenter) WrapConnector(c driver.Connector, database string) driver.Connector {
	if c == nil {
		return nil
	}
	switch w := c.(type) {
	case *connector:
		return w
	case *dsnConnector:
		return w
	}
	if database == "" {
		database = UnknownDatabase
	}
	return &connector{base: c, inst: i, database: database}
}

// Driver is an instrumented driver.Driver.
type Driver struct {
	base driver.Driver
	inst *Instrumenter
}

// Unwrap returns the wrapped driver.
func (d *Driver) Unwrap() driver.Driver {
	return d.base
}

// Open opens a connection with the wrapped driver.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	c, err := d.base.Open(dsn)
	if err != nil {
		return nil, err
	}
	return newConn(c, d.inst, d.inst.databaseName(dsn)), nil
}

// OpenConnector implements driver.DriverContext. Drivers without connector
// support are opened through Open.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	database := d.inst.databaseName(dsn)
	if dc, ok := d.base.(driver.DriverContext); ok {
		c, err := dc.OpenConnector(dsn)
		if err != nil {
			return nil, err
		}
		return &connector{base: c, inst: d.inst, database: database, driver: d}, nil
	}
	return &dsnConnector{dsn: dsn, driver: d}, nil
}

type connector struct {
	base     driver.Connector
	inst     *Instrumenter
	database string
	driver   driver.Driver
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.base.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return newConn(conn, c.inst, c.database), nil
}

func (c *connector) Driver() driver.Driver {
	if c.driver != nil {
		return c.driver
	}
	return c.inst.WrapDriver(c.base.Driver())
}

type dsnConnector struct {
	dsn    string
	driver *Driver
}

func (c *dsnConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *dsnConnector) Driver() driver.Driver {
	return c.driver
}

// run times call and reports it. driver.ErrSkip is returned without being
// reported, since database/sql retries the statement another way.
func run[T any](ctx context.Context, inst *Instrumenter, database, operation, query string, call func(context.Context) (T, error)) (T, error) {
	var span trace.Span
	if inst.tracer != nil {
		masked := masking.MaskQuery(query, masking.DefaultQueryLength)
		ctx, span = inst.tracer.Start(ctx, inst.component+" "+operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system.name", inst.component),
				attribute.String("db.namespace", database),
				attribute.String("db.query.text", masked),
			),
		)
	}

	start := time.Now()
	result, err := call(ctx)
	duration := time.Since(start)

	if err == driver.ErrSkip {
		if span != nil {
			span.End()
		}
		return result, err
	}

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}

	if inst.observer != nil {
		inst.observer.ObserveOperation(ctx, observability.OperationContext{
			Component: inst.component,
			Operation: operation,
			Resource:  database,
			Statement: query,
			Duration:  duration,
			Error:     err,
		})
	}
	return result, err
}
