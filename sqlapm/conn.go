package sqlapm

import (
	"context"
	"database/sql"
	"database/sql/driver"
)

// conn wraps a driver.Conn. The optional driver interfaces are always
// implemented and fall back to what database/sql does when the wrapped
// connection lacks them.
type conn struct {
	base     driver.Conn
	inst     *Instrumenter
	database string
}

func newConn(c driver.Conn, inst *Instrumenter, database string) *conn {
	return &conn{base: c, inst: inst, database: database}
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	s, err := c.base.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &stmt{base: s, conn: c, query: query}, nil
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	pc, ok := c.base.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	s, err := pc.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &stmt{base: s, conn: c, query: query}, nil
}

func (c *conn) Close() error {
	return c.base.Close()
}

//nolint:staticcheck // Begin is part of driver.Conn.
func (c *conn) Begin() (driver.Tx, error) {
	return c.base.Begin()
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.base.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	// Begin cannot carry options, so reject the ones it would drop.
	if opts.Isolation != driver.IsolationLevel(sql.LevelDefault) {
		return nil, ErrIsolationUnsupported
	}
	if opts.ReadOnly {
		return nil, ErrReadOnlyUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	//nolint:staticcheck // fallback for drivers without ConnBeginTx
	return c.base.Begin()
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.base.(driver.QueryerContext)
	if !ok {
		values, err := namedValuesToValues(args)
		if err != nil {
			return nil, driver.ErrSkip
		}
		return c.query(ctx, query, values)
	}
	return run(ctx, c.inst, c.database, OperationQuery, query, func(ctx context.Context) (driver.Rows, error) {
		return q.QueryContext(ctx, query, args)
	})
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	e, ok := c.base.(driver.ExecerContext)
	if !ok {
		values, err := namedValuesToValues(args)
		if err != nil {
			return nil, driver.ErrSkip
		}
		return c.exec(ctx, query, values)
	}
	return run(ctx, c.inst, c.database, OperationExec, query, func(ctx context.Context) (driver.Result, error) {
		return e.ExecContext(ctx, query, args)
	})
}

//nolint:staticcheck // legacy driver.Queryer
func (c *conn) Query(query string, args []driver.Value) (driver.Rows, error) {
	return c.query(context.Background(), query, args)
}

func (c *conn) query(ctx context.Context, query string, args []driver.Value) (driver.Rows, error) {
	//nolint:staticcheck // legacy driver.Queryer
	q, ok := c.base.(driver.Queryer)
	if !ok {
		return nil, driver.ErrSkip
	}
	return run(ctx, c.inst, c.database, OperationQuery, query, func(context.Context) (driver.Rows, error) {
		return q.Query(query, args)
	})
}

//nolint:staticcheck // legacy driver.Execer
func (c *conn) Exec(query string, args []driver.Value) (driver.Result, error) {
	return c.exec(context.Background(), query, args)
}

func (c *conn) exec(ctx context.Context, query string, args []driver.Value) (driver.Result, error) {
	//nolint:staticcheck // legacy driver.Execer
	e, ok := c.base.(driver.Execer)
	if !ok {
		return nil, driver.ErrSkip
	}
	return run(ctx, c.inst, c.database, OperationExec, query, func(context.Context) (driver.Result, error) {
		return e.Exec(query, args)
	})
}

func (c *conn) Ping(ctx context.Context) error {
	if p, ok := c.base.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *conn) ResetSession(ctx context.Context) error {
	if r, ok := c.base.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *conn) IsValid() bool {
	if v, ok := c.base.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *conn) CheckNamedValue(nv *driver.NamedValue) error {
	if nc, ok := c.base.(driver.NamedValueChecker); ok {
		return nc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

// stmt wraps a prepared statement; its executions are reported with the
// query it was prepared from.
type stmt struct {
	base  driver.Stmt
	conn  *conn
	query string
}

func (s *stmt) Close() error {
	return s.base.Close()
}

func (s *stmt) NumInput() int {
	return s.base.NumInput()
}

//nolint:staticcheck // part of driver.Stmt
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return run(context.Background(), s.conn.inst, s.conn.database, OperationExec, s.query, func(context.Context) (driver.Result, error) {
		return s.base.Exec(args)
	})
}

//nolint:staticcheck // part of driver.Stmt
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return run(context.Background(), s.conn.inst, s.conn.database, OperationQuery, s.query, func(context.Context) (driver.Rows, error) {
		return s.base.Query(args)
	})
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return run(ctx, s.conn.inst, s.conn.database, OperationExec, s.query, func(ctx context.Context) (driver.Result, error) {
		if e, ok := s.base.(driver.StmtExecContext); ok {
			return e.ExecContext(ctx, args)
		}
		values, err := namedValuesToValues(args)
		if err != nil {
			return nil, err
		}
		//nolint:staticcheck // fallback for statements without StmtExecContext
		return s.base.Exec(values)
	})
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return run(ctx, s.conn.inst, s.conn.database, OperationQuery, s.query, func(ctx context.Context) (driver.Rows, error) {
		if q, ok := s.base.(driver.StmtQueryContext); ok {
			return q.QueryContext(ctx, args)
		}
		values, err := namedValuesToValues(args)
		if err != nil {
			return nil, err
		}
		//nolint:staticcheck // fallback for statements without StmtQueryContext
		return s.base.Query(values)
	})
}

// CheckNamedValue defers to the connection's checker when the statement has
// none, as database/sql would for an unwrapped statement.
func (s *stmt) CheckNamedValue(nv *driver.NamedValue) error {
	if nc, ok := s.base.(driver.NamedValueChecker); ok {
		return nc.CheckNamedValue(nv)
	}
	return s.conn.CheckNamedValue(nv)
}

func namedValuesToValues(named []driver.NamedValue) ([]driver.Value, error) {
	values := make([]driver.Value, len(named))
	for i, nv := range named {
		if nv.Name != "" {
			return nil, errNamedArgs
		}
		values[i] = nv.Value
	}
	return values, nil
}
