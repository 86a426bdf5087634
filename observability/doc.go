// Package observability defines the hand-off between instrumentation
// adapters and whatever records their measurements.
//
// Adapters time the calls they intercept and report them through one of two
// interfaces:
//
//   - Observer for internal operations (SQL statements, outbound HTTP
//     calls), described by OperationContext.
//   - RequestObserver for units of work handled by an entry point (an HTTP
//     request, a gRPC call), described by RequestContext.
//
// The openapm facade implements both and turns the records into metric
// observations. Adapters never depend on the metrics package directly, so
// they can be tested with a recording observer and used with other sinks.
//
// # Implementing an observer
//
//	type logObserver struct{ log logger.Logger }
//
//	func (o logObserver) ObserveOperation(ctx context.Context, op observability.OperationContext) {
//	    o.log.InfoWithContext(ctx, "operation", op.Error, map[string]interface{}{
//	        "component": op.Component,
//	        "resource":  op.Resource,
//	        "duration":  op.Duration,
//	    })
//	}
//
// Observers are called synchronously on the goroutine that performed the
// operation and must be safe for concurrent use.
package observability
