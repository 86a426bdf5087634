package events

import (
	"context"
	"sync"
)

// Logger is the subset of logger.Logger used by the emitter.
type Logger interface {
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// Listener handles one emitted event. A returned error is logged.
type Listener func(ctx context.Context, kind Kind, event DomainEvent) error

type registration struct {
	listener Listener
	once     bool
}

// Emitter fans events out to listeners. Listeners run on their own
// goroutines so a slow collector never delays the application; Wait blocks
// until every delivery started so far has finished.
type Emitter struct {
	mu        sync.Mutex
	listeners map[Kind][]*registration
	inflight  sync.WaitGroup
	logger    Logger
}

// NewEmitter returns an Emitter without listeners.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[Kind][]*registration)}
}

// WithLogger attaches a logger for failed deliveries.
func (e *Emitter) WithLogger(logger Logger) *Emitter {
	e.logger = logger
	return e
}

// On registers l for every emission of kind.
func (e *Emitter) On(kind Kind, l Listener) {
	e.add(kind, l, false)
}

// Once registers l for the next emission of kind only.
func (e *Emitter) Once(kind Kind, l Listener) {
	e.add(kind, l, true)
}

func (e *Emitter) add(kind Kind, l Listener, once bool) {
	if l == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[kind] = append(e.listeners[kind], &registration{listener: l, once: once})
}

// Emit delivers event to the listeners of kind and reports how many were
// scheduled. Delivery is asynchronous and outlives cancellation of ctx.
func (e *Emitter) Emit(ctx context.Context, kind Kind, event DomainEvent) int {
	e.mu.Lock()
	regs := e.listeners[kind]
	kept := regs[:0:0]
	for _, r := range regs {
		if !r.once {
			kept = append(kept, r)
		}
	}
	e.listeners[kind] = kept
	e.inflight.Add(len(regs))
	e.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	for _, r := range regs {
		go func(l Listener) {
			defer e.inflight.Done()
			if err := l(detached, kind, event); err != nil && e.logger != nil {
				e.logger.ErrorWithContext(detached, "lifecycle event delivery failed", err, map[string]interface{}{
					"event": string(kind),
				})
			}
		}(r.listener)
	}
	return len(regs)
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (e *Emitter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
