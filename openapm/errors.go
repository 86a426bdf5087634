package openapm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedIntegration is returned by Instrument for a name outside
	// the supported integrations.
	ErrUnsupportedIntegration = errors.New("openapm: unsupported integration")

	// ErrMissingDependency matches every *MissingDependencyError.
	ErrMissingDependency = errors.New("openapm: missing dependency")

	// ErrShutdown is returned by Start and Instrument after Shutdown.
	ErrShutdown = errors.New("openapm: agent is shut down")
)

// MissingDependencyError reports that Instrument was called for an
// integration whose library handle was never provided, or was provided with
// the wrong type.
type MissingDependencyError struct {
	Integration Integration

	// Package is the import path of the library the integration needs.
	Package string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("openapm: cannot instrument %s: package %s was not provided", e.Integration, e.Package)
}

// Is reports whether target is ErrMissingDependency.
func (e *MissingDependencyError) Is(target error) bool {
	return target == ErrMissingDependency
}
