// Package grpcapm instruments gRPC servers.
//
// The interceptors report each call as a RequestContext with Method "GRPC",
// the full method name ("/grpc.health.v1.Health/Check") as Path and Route,
// and the status code name ("OK", "NotFound") as Status. Every call runs in
// its own request scope, so handlers can attach labels with
// requeststore.SetLabels(ctx, ...).
//
// Servers built through an instrumented Factory get the interceptors
// installed automatically, along with start and stop lifecycle events.
package grpcapm
