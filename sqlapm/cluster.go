package sqlapm

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Cluster is a set of named connection pools sharing one driver. Pools are
// opened on first use, so adding a node never dials the database.
//
// When driverName was registered through Instrumenter.Register every pool,
// and every connection it hands out, is instrumented.
type Cluster struct {
	driverName string
	pool       PoolConfig

	mu     sync.Mutex
	dsns   map[string]string
	dbs    map[string]*sql.DB
	closed bool
}

// NewCluster creates an empty Cluster opening pools with driverName.
func NewCluster(driverName string, pool PoolConfig) *Cluster {
	return &Cluster{
		driverName: driverName,
		pool:       pool.withDefaults(),
		dsns:       make(map[string]string),
		dbs:        make(map[string]*sql.DB),
	}
}

// Add registers a node.
func (c *Cluster) Add(name, dsn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClusterClosed
	}
	if _, ok := c.dsns[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}
	c.dsns[name] = dsn
	return nil
}

// Of returns the pool of the named node, opening it on first use.
func (c *Cluster) Of(name string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClusterClosed
	}
	if db, ok := c.dbs[name]; ok {
		return db, nil
	}
	dsn, ok := c.dsns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}

	db, err := sql.Open(c.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cluster node %s: %w", name, err)
	}
	db.SetMaxOpenConns(c.pool.MaxOpenConns)
	db.SetMaxIdleConns(c.pool.MaxIdleConns)
	db.SetConnMaxLifetime(c.pool.ConnMaxLifetime)

	c.dbs[name] = db
	return db, nil
}

// Names returns the registered node names in sorted order.
func (c *Cluster) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.dsns))
	for name := range c.dsns {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close closes every opened pool. Further calls return nil.
func (c *Cluster) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for name, db := range c.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cluster node %s: %w", name, err))
		}
	}
	c.dbs = nil
	return errors.Join(errs...)
}
