// Package httpclientapm instruments outbound HTTP calls.
//
// A Transport reports every round trip as an OperationContext with the
// request method as Operation, the origin (scheme://host) as Resource and
// the response status code as Status. The openapm facade turns these into
// the fetch_requests_total and fetch_duration_milliseconds series.
package httpclientapm
