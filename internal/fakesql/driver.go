// Package fakesql is an in-memory database/sql driver for tests. It records
// every statement it executes and fails any statement containing "FAIL".
package fakesql

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrStatement is returned for statements containing "FAIL".
var ErrStatement = errors.New("fakesql: statement failed")

// ErrOpen is returned by Open for the DSN "fail".
var ErrOpen = errors.New("fakesql: cannot connect")

// Driver records statements. The zero value is ready to use.
type Driver struct {
	mu         sync.Mutex
	statements []string
	opened     []string
}

// Open returns a connection. The DSN is only recorded.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	if dsn == "fail" {
		return nil, ErrOpen
	}
	d.mu.Lock()
	d.opened = append(d.opened, dsn)
	d.mu.Unlock()
	return &Conn{driver: d}, nil
}

// Statements returns the statements executed so far.
func (d *Driver) Statements() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.statements...)
}

// Opened returns the DSNs connections were opened with.
func (d *Driver) Opened() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

func (d *Driver) record(query string) error {
	d.mu.Lock()
	d.statements = append(d.statements, query)
	d.mu.Unlock()
	if strings.Contains(query, "FAIL") {
		return ErrStatement
	}
	return nil
}

// Conn is a fake connection. Statements containing "PREPARED" make the
// direct query and exec paths return driver.ErrSkip, so database/sql falls
// back to a prepared statement.
type Conn struct {
	driver *Driver
}

func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{conn: c, query: query}, nil
}

func (c *Conn) Close() error { return nil }

//nolint:staticcheck // part of driver.Conn
func (c *Conn) Begin() (driver.Tx, error) { return tx{}, nil }

func (c *Conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if strings.Contains(query, "PREPARED") {
		return nil, driver.ErrSkip
	}
	if err := c.driver.record(query); err != nil {
		return nil, err
	}
	return newRows(), nil
}

func (c *Conn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	if strings.Contains(query, "PREPARED") {
		return nil, driver.ErrSkip
	}
	if err := c.driver.record(query); err != nil {
		return nil, err
	}
	return result{}, nil
}

// Stmt is a fake prepared statement.
type Stmt struct {
	conn  *Conn
	query string
}

func (s *Stmt) Close() error  { return nil }
func (s *Stmt) NumInput() int { return -1 }

//nolint:staticcheck // part of driver.Stmt
func (s *Stmt) Exec([]driver.Value) (driver.Result, error) {
	if err := s.conn.driver.record(s.query); err != nil {
		return nil, err
	}
	return result{}, nil
}

//nolint:staticcheck // part of driver.Stmt
func (s *Stmt) Query([]driver.Value) (driver.Rows, error) {
	if err := s.conn.driver.record(s.query); err != nil {
		return nil, err
	}
	return newRows(), nil
}

type tx struct{}

func (tx) Commit() error   { return nil }
func (tx) Rollback() error { return nil }

// result reports one affected row with insert id 1.
type result struct{}

func (result) LastInsertId() (int64, error) { return 1, nil }
func (result) RowsAffected() (int64, error) { return 1, nil }

// rows yields a single row with one column "n" holding 1.
type rows struct {
	done bool
}

func newRows() *rows { return &rows{} }

func (r *rows) Columns() []string { return []string{"n"} }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = int64(1)
	return nil
}
