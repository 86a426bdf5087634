package observability

import (
	"context"
	"time"
)

// Observer receives internal operations performed by instrumented libraries:
// SQL statements, outbound HTTP calls.
//
// Adapters work without an observer; a nil Observer simply means nothing is
// recorded.
type Observer interface {
	// ObserveOperation is called once the operation has completed.
	ObserveOperation(ctx context.Context, op OperationContext)
}

// OperationContext describes one completed internal operation.
type OperationContext struct {
	// Component identifies the adapter that performed the operation.
	// Examples: "mysql", "postgres", "gorm", "http-client"
	Component string

	// Operation describes what was performed.
	// Examples:
	//   SQL:         "query", "exec", "create", "update", "row"
	//   HTTP client: the request method
	Operation string

	// Resource identifies the target of the operation.
	// Examples:
	//   SQL:         database name ("orders"), "[db-name]" when unknown
	//   HTTP client: origin of the request ("https://api.example.com")
	Resource string

	// Statement is the raw statement text for SQL operations. Observers are
	// expected to mask it before using it as a label.
	Statement string

	// Status is the outcome as reported by the remote side, when there is
	// one (an HTTP status code). Empty for SQL operations.
	Status string

	// Duration is the wall time between issuing the call and its return.
	Duration time.Duration

	// Error is the error returned by the operation. nil means success.
	Error error

	// Metadata carries adapter-specific extras.
	Metadata map[string]interface{}
}

// RequestObserver receives completed units of work handled by an
// instrumented entry point: an HTTP request, a gRPC call.
type RequestObserver interface {
	// ObserveRequest is called after the response has been written.
	ObserveRequest(ctx context.Context, req RequestContext)
}

// RequestContext describes one completed request.
type RequestContext struct {
	// Component identifies the entry point adapter ("net/http", "grpc").
	Component string

	// Method is the HTTP method, or "GRPC" for gRPC calls.
	Method string

	// Path is the raw request URI, including any query string.
	Path string

	// Route is the matched route template in colon form
	// ("/api/router/:id"), or empty when the router did not report one.
	Route string

	// Status is the response status: the HTTP status code, or the gRPC
	// status code name.
	Status string

	// Duration is the wall time spent handling the request.
	Duration time.Duration

	// Labels holds the labels accumulated in the request scope.
	Labels map[string]string

	// PathValue returns the value of a named route parameter, or "" when the
	// route has no such parameter. May be nil.
	PathValue func(name string) string
}

// Param returns the named route parameter, or "" when unavailable.
func (r RequestContext) Param(name string) string {
	if r.PathValue == nil {
		return ""
	}
	return r.PathValue(name)
}
