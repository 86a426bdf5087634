package gormapm

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/aalemi-dev/openapm/observability"
	"github.com/aalemi-dev/openapm/sqlapm"
)

// Component is reported in OperationContext.Component.
const Component = "gorm"

const (
	callbackPrefix = "openapm:"
	startKey       = "openapm:started_at"
)

// ErrNilDB is returned by Instrument when no *gorm.DB is given.
var ErrNilDB = errors.New("gormapm: nil db")

// Option configures Instrument.
type Option func(*options)

type options struct {
	database string
}

// WithDatabaseName sets the reported database name instead of reading it
// from the dialector's DSN.
func WithDatabaseName(name string) Option {
	return func(o *options) {
		o.database = name
	}
}

var mu sync.Mutex

// Instrument registers timing callbacks around the create, query, update,
// delete, row and raw processors of db. Callbacks are shared by every session
// derived from db, so instrumenting it again, or any session of it, is a
// no-op.
//
// Example:
//
//	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
//	if err != nil {
//	    return err
//	}
//	if err := gormapm.Instrument(db, apm.OperationObserver()); err != nil {
//	    return err
//	}
func Instrument(db *gorm.DB, obs observability.Observer, opts ...Option) error {
	if db == nil {
		return ErrNilDB
	}
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	database := o.database
	if database == "" {
		database = databaseName(db)
	}

	mu.Lock()
	defer mu.Unlock()

	cb := db.Callback()
	if cb.Query().Get(afterName("query")) != nil {
		return nil
	}

	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			observe(tx, obs, operation, database)
		}
	}

	return errors.Join(
		cb.Create().Before("gorm:create").Register(beforeName("create"), before),
		cb.Create().After("gorm:create").Register(afterName("create"), after("create")),
		cb.Query().Before("gorm:query").Register(beforeName("query"), before),
		cb.Query().After("gorm:query").Register(afterName("query"), after("query")),
		cb.Update().Before("gorm:update").Register(beforeName("update"), before),
		cb.Update().After("gorm:update").Register(afterName("update"), after("update")),
		cb.Delete().Before("gorm:delete").Register(beforeName("delete"), before),
		cb.Delete().After("gorm:delete").Register(afterName("delete"), after("delete")),
		cb.Row().Before("gorm:row").Register(beforeName("row"), before),
		cb.Row().After("gorm:row").Register(afterName("row"), after("row")),
		cb.Raw().Before("gorm:raw").Register(beforeName("raw"), before),
		cb.Raw().After("gorm:raw").Register(afterName("raw"), after("raw")),
	)
}

func beforeName(operation string) string {
	return callbackPrefix + "before_" + operation
}

func afterName(operation string) string {
	return callbackPrefix + "after_" + operation
}

// observe reports one finished statement. gorm.ErrRecordNotFound is not a
// failure: the statement itself succeeded.
func observe(tx *gorm.DB, obs observability.Observer, operation, database string) {
	if obs == nil || tx.Statement == nil {
		return
	}
	value, ok := tx.InstanceGet(startKey)
	if !ok {
		return
	}
	start, ok := value.(time.Time)
	if !ok {
		return
	}

	err := tx.Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = nil
	}
	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	obs.ObserveOperation(ctx, observability.OperationContext{
		Component: Component,
		Operation: operation,
		Resource:  database,
		Statement: tx.Statement.SQL.String(),
		Duration:  time.Since(start),
		Error:     err,
		Metadata: map[string]interface{}{
			"table":         tx.Statement.Table,
			"rows_affected": tx.RowsAffected,
		},
	})
}

// databaseName reads the database name from the MySQL or PostgreSQL
// dialector configuration.
func databaseName(db *gorm.DB) string {
	switch d := db.Dialector.(type) {
	case *mysql.Dialector:
		if d.Config == nil {
			break
		}
		if d.DSNConfig != nil && d.DSNConfig.DBName != "" {
			return d.DSNConfig.DBName
		}
		if d.DSN != "" {
			return sqlapm.MySQLDatabase(d.DSN)
		}
	case *postgres.Dialector:
		if d.Config != nil && d.DSN != "" {
			return sqlapm.PostgresDatabase(d.DSN)
		}
	}
	return sqlapm.UnknownDatabase
}
