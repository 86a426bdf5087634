package events

import (
	"context"
	"time"
)

// Kind names a lifecycle event.
type Kind string

// Lifecycle event kinds emitted by the entry point adapters.
const (
	ApplicationStarted Kind = "application_started"
	ApplicationStopped Kind = "application_stopped"
)

// Event states carried in DomainEvent.EventState.
const (
	StateStart = "start"
	StateStop  = "stop"
)

// DomainEvent is the payload forwarded for a lifecycle event.
type DomainEvent struct {
	Timestamp      string `json:"timestamp"`
	EventName      string `json:"event_name"`
	EventState     string `json:"event_state"`
	EntityType     string `json:"entity_type,omitempty"`
	Workspace      string `json:"workspace,omitempty"`
	Namespace      string `json:"namespace,omitempty"`
	DataSourceName string `json:"data_source_name"`
}

// Metadata describes the running application for DomainEvent construction.
type Metadata struct {
	// Program is the application name; events are named "<program>_app".
	Program string

	// Environment is reported as the namespace.
	Environment string

	// Workspace is usually the host name.
	Workspace string

	// DataSourceName identifies the metrics data source at the collector.
	DataSourceName string
}

// NewDomainEvent builds the payload for kind at the given time.
func NewDomainEvent(kind Kind, meta Metadata, at time.Time) DomainEvent {
	state := StateStart
	if kind == ApplicationStopped {
		state = StateStop
	}
	return DomainEvent{
		Timestamp:      at.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		EventName:      meta.Program + "_app",
		EventState:     state,
		EntityType:     "app",
		Workspace:      meta.Workspace,
		Namespace:      meta.Environment,
		DataSourceName: meta.DataSourceName,
	}
}

// Lifecycle is notified by entry point adapters when the instrumented
// application starts serving and when it stops.
type Lifecycle interface {
	ApplicationStarted(ctx context.Context)
	ApplicationStopped(ctx context.Context)
}
