package requeststore

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"
)

// State is the mutable label bag of one unit of work. It is safe for
// concurrent use by every goroutine that shares the unit's context.
type State struct {
	mu     sync.Mutex
	labels map[string]string
}

// NewState returns an empty State.
func NewState() *State {
	return &State{labels: make(map[string]string)}
}

// Set merges labels into the state, overwriting existing keys.
func (s *State) Set(labels map[string]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.labels == nil {
		s.labels = make(map[string]string, len(labels))
	}
	maps.Copy(s.labels, labels)
}

// Labels returns a copy of the accumulated labels.
func (s *State) Labels() map[string]string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.labels)
}

type storeKey struct {
	id uint64
}

// Store associates a State with a context and everything derived from it.
// Each Store uses its own context key, so two stores never see each other's
// state.
type Store struct {
	key storeKey
}

var (
	nextID   uint64
	nextIDMu sync.Mutex

	defaultStore     *Store
	defaultStoreOnce sync.Once
)

// New creates a Store with a fresh context key.
func New() *Store {
	nextIDMu.Lock()
	defer nextIDMu.Unlock()
	nextID++
	return &Store{key: storeKey{id: nextID}}
}

// Default returns the process-wide Store used by instrumented entry points
// and by SetLabels.
func Default() *Store {
	defaultStoreOnce.Do(func() {
		defaultStore = New()
	})
	return defaultStore
}

// With returns a copy of ctx in which state is the current scope.
func (s *Store) With(ctx context.Context, state *State) context.Context {
	if state == nil {
		state = NewState()
	}
	return context.WithValue(ctx, s.key, state)
}

// Current returns the scope carried by ctx, or nil outside any scope.
func (s *Store) Current(ctx context.Context) *State {
	if ctx == nil {
		return nil
	}
	state, _ := ctx.Value(s.key).(*State)
	return state
}

// Run calls fn with a context whose current scope is state. Goroutines
// started by fn with that context, or any context derived from it, see the
// same state; sibling Run calls do not. A nil state starts an empty scope.
//
// Labels written before fn fails or panics remain readable through state.
func (s *Store) Run(ctx context.Context, state *State, fn func(ctx context.Context) error) error {
	return fn(s.With(ctx, state))
}

// SetLabels merges labels into the current scope of the default store. It is
// a no-op outside a scope.
//
// Example:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    requeststore.SetLabels(r.Context(), map[string]any{"tenant": "acme", "retry": false})
//	}
func SetLabels(ctx context.Context, labels map[string]any) {
	state := Default().Current(ctx)
	if state == nil || len(labels) == 0 {
		return
	}
	converted := make(map[string]string, len(labels))
	for k, v := range labels {
		converted[k] = format(v)
	}
	state.Set(converted)
}

// Labels returns a copy of the labels in the current scope of the default
// store, or nil outside a scope.
func Labels(ctx context.Context) map[string]string {
	return Default().Current(ctx).Labels()
}

func format(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
