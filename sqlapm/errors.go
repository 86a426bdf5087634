package sqlapm

import "errors"

var (
	// ErrNilDriver is returned when a nil driver is registered.
	ErrNilDriver = errors.New("sqlapm: nil driver")

	// ErrDriverNameTaken is returned by Register when database/sql already
	// has a driver under the requested name that was not registered here.
	ErrDriverNameTaken = errors.New("sqlapm: driver name already registered")

	// ErrUnknownNode is returned by Cluster.Of for a name that was never added.
	ErrUnknownNode = errors.New("sqlapm: unknown cluster node")

	// ErrDuplicateNode is returned by Cluster.Add when the name is in use.
	ErrDuplicateNode = errors.New("sqlapm: cluster node already exists")

	// ErrClusterClosed is returned by Cluster methods after Close.
	ErrClusterClosed = errors.New("sqlapm: cluster closed")

	// ErrIsolationUnsupported is returned by BeginTx for a non-default
	// isolation level when the wrapped driver only implements Begin.
	ErrIsolationUnsupported = errors.New("sqlapm: driver does not support non-default isolation level")

	// ErrReadOnlyUnsupported is returned by BeginTx for a read-only
	// transaction when the wrapped driver only implements Begin.
	ErrReadOnlyUnsupported = errors.New("sqlapm: driver does not support read-only transactions")
)

var errNamedArgs = errors.New("sqlapm: driver does not support named parameters")
