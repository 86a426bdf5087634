package observability

import "context"

// NoOpObserver discards everything. It satisfies both Observer and
// RequestObserver.
type NoOpObserver struct{}

// ObserveOperation does nothing.
func (n *NoOpObserver) ObserveOperation(context.Context, OperationContext) {}

// ObserveRequest does nothing.
func (n *NoOpObserver) ObserveRequest(context.Context, RequestContext) {}

// NewNoOpObserver creates a new NoOpObserver.
func NewNoOpObserver() *NoOpObserver {
	return &NoOpObserver{}
}
