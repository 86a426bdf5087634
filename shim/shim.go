package shim

import (
	"context"
	"reflect"
	"sync"
)

// Logger is the subset of logger.Logger used to report rejected wraps.
type Logger interface {
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

var (
	mu       sync.Mutex
	registry = make(map[any]any)

	logMu  sync.RWMutex
	logger Logger
)

// SetLogger sets the logger used to report rejected wraps. A nil logger
// disables reporting, which is the default.
func SetLogger(l Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	logger = l
}

// Wrapped is the handle for a value installed into a slot by Wrap.
type Wrapped[T any] struct {
	name     string
	target   *T
	original T
	wrapper  T
}

// Name returns the label the slot was wrapped under.
func (w *Wrapped[T]) Name() string {
	return w.name
}

// Original returns the value the slot held before it was wrapped.
func (w *Wrapped[T]) Original() T {
	return w.original
}

// Unwrap restores the original value if the slot still holds this wrapper.
// If something else has since been assigned to the slot it is left alone.
// In both cases the slot stops being reported as wrapped by this handle.
func (w *Wrapped[T]) Unwrap() {
	mu.Lock()
	defer mu.Unlock()

	if current, ok := registry[w.target]; ok && current == any(w) {
		delete(registry, w.target)
	}
	if sameValue(*w.target, w.wrapper) {
		*w.target = w.original
	}
}

// Wrap replaces *target with factory(*target).
//
// Parameters:
//   - target: pointer to the slot holding the value to wrap
//   - name: label used in log output
//   - factory: receives the original value and returns its replacement
//
// Returns:
//   - *Wrapped[T]: handle to the installed wrapper, or the existing handle
//     when the slot is already wrapped
//   - error: ErrNoTarget, ErrNotInvokable or ErrWrapperNotInvokable when the
//     request is rejected; the slot keeps its current value
//
// The factory runs without the registry lock held, so it may itself call Wrap
// on other slots.
func Wrap[T any](target *T, name string, factory func(original T) T) (*Wrapped[T], error) {
	if target == nil {
		return nil, reject(name, ErrNoTarget)
	}

	mu.Lock()
	if w, ok := lookup(target); ok {
		mu.Unlock()
		return w, nil
	}
	original := *target
	mu.Unlock()

	if !invokable(original) {
		return nil, reject(name, ErrNotInvokable)
	}
	if factory == nil {
		return nil, reject(name, ErrWrapperNotInvokable)
	}

	replacement := factory(original)
	if !invokable(replacement) {
		return nil, reject(name, ErrWrapperNotInvokable)
	}

	mu.Lock()
	defer mu.Unlock()

	// Another goroutine may have won the race while the factory ran.
	if w, ok := lookup(target); ok {
		return w, nil
	}

	w := &Wrapped[T]{
		name:     name,
		target:   target,
		original: *target,
		wrapper:  replacement,
	}
	*target = replacement
	registry[target] = w
	return w, nil
}

// IsWrapped reports whether the slot currently holds a wrapper installed by
// Wrap.
func IsWrapped[T any](target *T) bool {
	if target == nil {
		return false
	}
	mu.Lock()
	defer mu.Unlock()
	_, ok := lookup(target)
	return ok
}

// Unwrap restores the slot's original value if it is wrapped. It reports
// whether a handle was found for the slot.
func Unwrap[T any](target *T) bool {
	if target == nil {
		return false
	}
	mu.Lock()
	w, ok := lookup(target)
	mu.Unlock()
	if !ok {
		return false
	}
	w.Unwrap()
	return true
}

// Forget stops tracking the slot without restoring it. The wrapper stays
// installed, but the registry no longer references the slot and IsWrapped
// reports false for it. It reports whether the slot was tracked.
//
// Slots are otherwise held until Unwrap, so callers that wrap slots of
// short-lived values should Forget them once the value is done.
func Forget[T any](target *T) bool {
	if target == nil {
		return false
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[target]; !ok {
		return false
	}
	delete(registry, target)
	return true
}

// lookup returns the live handle for target. A handle whose wrapper has been
// overwritten by someone else is dropped. Callers must hold mu.
func lookup[T any](target *T) (*Wrapped[T], bool) {
	entry, ok := registry[target]
	if !ok {
		return nil, false
	}
	w, ok := entry.(*Wrapped[T])
	if !ok {
		return nil, false
	}
	if !sameValue(*target, w.wrapper) {
		delete(registry, target)
		return nil, false
	}
	return w, true
}

func reject(name string, err error) error {
	logMu.RLock()
	l := logger
	logMu.RUnlock()

	if l != nil {
		l.WarnWithContext(context.Background(), "wrap rejected", err, map[string]interface{}{
			"slot": name,
		})
	}
	return err
}

// invokable reports whether v is a non-nil function or a non-nil value that
// has methods.
func invokable(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Func:
		return !rv.IsNil()
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return false
		}
	}
	return rv.Type().NumMethod() > 0
}

func sameValue(a, b any) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !ra.IsValid() || !rb.IsValid() {
		return ra.IsValid() == rb.IsValid()
	}
	if ra.Type() != rb.Type() {
		return false
	}
	if ra.Kind() == reflect.Func {
		return ra.Pointer() == rb.Pointer()
	}
	if !ra.Comparable() {
		return false
	}
	return ra.Equal(rb)
}
