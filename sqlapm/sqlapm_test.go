package sqlapm

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aalemi-dev/openapm/internal/fakesql"
	"github.com/aalemi-dev/openapm/observability"
)

type recordingObserver struct {
	mu  sync.Mutex
	ops []observability.OperationContext
}

func (r *recordingObserver) ObserveOperation(_ context.Context, op observability.OperationContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingObserver) all() []observability.OperationContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observability.OperationContext(nil), r.ops...)
}

const mysqlDSN = "app:secret@tcp(db:3306)/orders?parseTime=true"

func openDB(t *testing.T, inst *Instrumenter, drv driver.Driver, dsn string) *sql.DB {
	t.Helper()
	name := "sqlapm-" + t.Name()
	require.NoError(t, inst.Register(name, drv))
	db, err := sql.Open(name, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDriver_ReportsQueriesAndExecs(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	fake := &fakesql.Driver{}
	db := openDB(t, NewInstrumenter(ComponentMySQL, obs), fake, mysqlDSN)

	var n int
	require.NoError(t, db.QueryRow("SELECT 1 FROM users WHERE id = 7").Scan(&n))
	assert.Equal(t, 1, n)
	_, err := db.Exec("UPDATE users SET name = 'x'")
	require.NoError(t, err)

	ops := obs.all()
	require.Len(t, ops, 2)
	assert.Equal(t, observability.OperationContext{
		Component: ComponentMySQL,
		Operation: OperationQuery,
		Resource:  "orders",
		Statement: "SELECT 1 FROM users WHERE id = 7",
		Duration:  ops[0].Duration,
	}, ops[0])
	assert.Equal(t, OperationExec, ops[1].Operation)
	assert.NoError(t, ops[1].Error)
}

func TestDriver_FailureIsReportedAndReturned(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	db := openDB(t, NewInstrumenter(ComponentMySQL, obs), &fakesql.Driver{}, mysqlDSN)

	_, err := db.Exec("DELETE FROM FAIL")
	require.ErrorIs(t, err, fakesql.ErrStatement)

	ops := obs.all()
	require.Len(t, ops, 1)
	assert.ErrorIs(t, ops[0].Error, fakesql.ErrStatement)
}

func TestDriver_SkippedCallsFallBackToPreparedStatements(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	fake := &fakesql.Driver{}
	db := openDB(t, NewInstrumenter(ComponentMySQL, obs), fake, mysqlDSN)

	rows, err := db.Query("SELECT PREPARED FROM t WHERE id = ?", 3)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	ops := obs.all()
	require.Len(t, ops, 1, "driver.ErrSkip is not reported")
	assert.Equal(t, OperationQuery, ops[0].Operation)
	assert.Equal(t, []string{"SELECT PREPARED FROM t WHERE id = ?"}, fake.Statements())
}

func TestDriver_PreparedStatementsTransactionsAndConns(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	db := openDB(t, NewInstrumenter(ComponentMySQL, obs), &fakesql.Driver{}, mysqlDSN)
	ctx := context.Background()

	stmt, err := db.PrepareContext(ctx, "INSERT INTO t VALUES (?)")
	require.NoError(t, err)
	_, err = stmt.ExecContext(ctx, 1)
	require.NoError(t, err)
	_, err = stmt.ExecContext(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, stmt.Close())

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "UPDATE t SET a = 1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "UPDATE t SET a = 2")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Len(t, obs.all(), 4)
}

func TestDriver_BeginTxRejectsOptionsBeginCannotHonour(t *testing.T) {
	t.Parallel()
	db := openDB(t, NewInstrumenter(ComponentMySQL, &recordingObserver{}), &fakesql.Driver{}, mysqlDSN)
	ctx := context.Background()

	_, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	assert.ErrorIs(t, err, ErrReadOnlyUnsupported)

	_, err = db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	assert.ErrorIs(t, err, ErrIsolationUnsupported)

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
}

func TestDriver_ConcurrentPoolUsage(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	db := openDB(t, NewInstrumenter(ComponentMySQL, obs), &fakesql.Driver{}, mysqlDSN)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = db.Exec("UPDATE counters SET n = n + 1")
		}()
	}
	wg.Wait()
	assert.Len(t, obs.all(), 20)
}

func TestInstrumenter_WrapsOncePerDriverType(t *testing.T) {
	t.Parallel()
	inst := NewInstrumenter(ComponentMySQL, nil)

	first := inst.WrapDriver(&fakesql.Driver{})
	second := inst.WrapDriver(&fakesql.Driver{})
	assert.Same(t, first, second)
	assert.Same(t, first, inst.WrapDriver(first))
	assert.Nil(t, inst.WrapDriver(nil))
}

func TestInstrumenter_Register(t *testing.T) {
	t.Parallel()
	inst := NewInstrumenter(ComponentPostgres, nil)
	name := "sqlapm-register-" + t.Name()

	require.NoError(t, inst.Register(name, &fakesql.Driver{}))
	require.NoError(t, inst.Register(name, &fakesql.Driver{}))
	assert.ErrorIs(t, inst.Register(name+"-nil", nil), ErrNilDriver)

	other := NewInstrumenter(ComponentPostgres, nil)
	assert.ErrorIs(t, other.Register(name, &fakesql.Driver{}), ErrDriverNameTaken)
}

func TestInstrumenter_WrapConnector(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	inst := NewInstrumenter(ComponentMySQL, obs)
	fake := &fakesql.Driver{}

	wrapped := inst.WrapConnector(dsnOnly{dsn: "x", driver: fake}, "inventory")
	assert.Same(t, wrapped, inst.WrapConnector(wrapped, "other"))

	db := sql.OpenDB(wrapped)
	defer db.Close()

	_, err := db.Exec("SELECT 1")
	require.NoError(t, err)
	ops := obs.all()
	require.Len(t, ops, 1)
	assert.Equal(t, "inventory", ops[0].Resource)
	assert.Same(t, inst.WrapDriver(fake), db.Driver())

	unnamed := sql.OpenDB(inst.WrapConnector(dsnOnly{dsn: "x", driver: fake}, ""))
	defer unnamed.Close()
	_, err = unnamed.Exec("SELECT 1")
	require.NoError(t, err)
	require.Len(t, obs.all(), 2)
	assert.Equal(t, UnknownDatabase, obs.all()[1].Resource)

	assert.Nil(t, inst.WrapConnector(nil, "x"))
}

type dsnOnly struct {
	dsn    string
	driver driver.Driver
}

func (c dsnOnly) Connect(context.Context) (driver.Conn, error) { return c.driver.Open(c.dsn) }
func (c dsnOnly) Driver() driver.Driver                        { return c.driver }

func TestInstrumenter_Spans(t *testing.T) {
	t.Parallel()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	inst := NewInstrumenter(ComponentMySQL, nil, WithTracer(provider.Tracer("sqlapm-test")))
	db := openDB(t, inst, &fakesql.Driver{}, mysqlDSN)

	_, err := db.Exec("UPDATE users SET age = 30 WHERE name = 'bob'")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "mysql exec", spans[0].Name())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "orders", attrs["db.namespace"])
	assert.Equal(t, "UPDATE users SET age = $1 WHERE name = $2", attrs["db.query.text"])
}

func TestDatabaseNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "orders", MySQLDatabase(mysqlDSN))
	assert.Equal(t, UnknownDatabase, MySQLDatabase("app@tcp(db:3306)/"))
	assert.Equal(t, UnknownDatabase, MySQLDatabase("%%not a dsn"))

	assert.Equal(t, "billing", PostgresDatabase("postgres://u:p@localhost:5432/billing?sslmode=disable"))
	assert.Equal(t, "billing", PostgresDatabase("host=localhost user=u dbname=billing sslmode=disable"))
	assert.Equal(t, UnknownDatabase, PostgresDatabase("postgres://u@[::1"))

	custom := NewInstrumenter("sqlite", nil, WithDatabaseName(func(string) string { return "main" }))
	assert.Equal(t, "main", custom.databaseName("file.db"))
	assert.Equal(t, UnknownDatabase, NewInstrumenter("sqlite", nil).databaseName("file.db"))
}

func TestCluster(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	fake := &fakesql.Driver{}
	name := "sqlapm-cluster-" + t.Name()
	require.NoError(t, NewInstrumenter(ComponentMySQL, obs).Register(name, fake))

	cluster := NewCluster(name, PoolConfig{})
	require.NoError(t, cluster.Add("primary", "u:p@tcp(a:3306)/orders"))
	require.NoError(t, cluster.Add("replica", "u:p@tcp(b:3306)/orders_ro"))
	assert.ErrorIs(t, cluster.Add("primary", "x"), ErrDuplicateNode)
	assert.Equal(t, []string{"primary", "replica"}, cluster.Names())
	assert.Empty(t, fake.Opened(), "nodes are opened lazily")

	primary, err := cluster.Of("primary")
	require.NoError(t, err)
	again, err := cluster.Of("primary")
	require.NoError(t, err)
	assert.Same(t, primary, again)
	assert.Equal(t, DefaultMaxOpenConns, primary.Stats().MaxOpenConnections)

	replica, err := cluster.Of("replica")
	require.NoError(t, err)
	_, err = primary.Exec("UPDATE a SET b = 1")
	require.NoError(t, err)
	_, err = replica.Exec("SELECT 1")
	require.NoError(t, err)

	ops := obs.all()
	require.Len(t, ops, 2)
	assert.Equal(t, "orders", ops[0].Resource)
	assert.Equal(t, "orders_ro", ops[1].Resource)

	_, err = cluster.Of("missing")
	assert.ErrorIs(t, err, ErrUnknownNode)

	require.NoError(t, cluster.Close())
	require.NoError(t, cluster.Close())
	_, err = cluster.Of("primary")
	assert.ErrorIs(t, err, ErrClusterClosed)
	assert.ErrorIs(t, cluster.Add("x", "y"), ErrClusterClosed)
}
