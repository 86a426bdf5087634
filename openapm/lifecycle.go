package openapm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aalemi-dev/openapm/events"
)

// lifecycle emits application_started and application_stopped at most once
// each per agent.
type lifecycle struct {
	a       *APM
	started sync.Once
	stopped sync.Once
	begun   atomic.Bool
}

func (l *lifecycle) ApplicationStarted(ctx context.Context) {
	l.started.Do(func() {
		l.begun.Store(true)
		l.a.emit(ctx, events.ApplicationStarted)
	})
}

func (l *lifecycle) ApplicationStopped(ctx context.Context) {
	l.stopped.Do(func() {
		l.a.emit(ctx, events.ApplicationStopped)
	})
}

// stopIfStarted emits application_stopped when application_started was
// emitted and the stop was not yet reported.
func (l *lifecycle) stopIfStarted(ctx context.Context) {
	if l.begun.Load() {
		l.ApplicationStopped(ctx)
	}
}

// Lifecycle returns the notifier the server adapters report start and stop
// to. Each event is emitted once per agent.
func (a *APM) Lifecycle() events.Lifecycle {
	return a.lifecycle
}

// Emitter returns the agent's event emitter, to register extra listeners.
//
// Example:
//
//	apm.Emitter().On(events.ApplicationStarted, func(ctx context.Context, _ events.Kind, ev events.DomainEvent) error {
//	    log.Println("started", ev.EventName)
//	    return nil
//	})
func (a *APM) Emitter() *events.Emitter {
	return a.emitter
}

func (a *APM) emit(ctx context.Context, kind events.Kind) {
	if a.cfg.Disabled {
		return
	}
	ev := events.NewDomainEvent(kind, a.eventMeta, time.Now())
	n := a.emitter.Emit(ctx, kind, ev)
	a.logDebug(ctx, "lifecycle event emitted", map[string]interface{}{
		"event":     string(kind),
		"listeners": n,
	})
}
