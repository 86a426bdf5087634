package shim

import "errors"

// Sentinel errors returned when a wrap request is rejected. The target slot
// is left untouched in every case.
var (
	// ErrNoTarget is returned when Wrap is given a nil slot pointer.
	ErrNoTarget = errors.New("shim: target slot is nil")

	// ErrNotInvokable is returned when the slot does not hold a function or
	// a non-nil value with methods.
	ErrNotInvokable = errors.New("shim: target value is not invokable")

	// ErrWrapperNotInvokable is returned when the wrapper factory is nil or
	// produced a value that cannot be called.
	ErrWrapperNotInvokable = errors.New("shim: wrapper did not produce an invokable value")
)
