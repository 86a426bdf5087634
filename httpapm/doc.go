// Package httpapm instruments net/http servers.
//
// Middleware times each request, captures the response status and reports a
// RequestContext to a RequestObserver. The route template comes from the
// pattern the ServeMux matched ("GET /api/router/{id}" is reported as
// "/api/router/:id"), so high-cardinality paths collapse into one series.
//
// Instrument installs the middleware on an *http.Server as the outermost
// handler and emits lifecycle events when the server starts and stops:
//
//	srv := &http.Server{Addr: ":8080", Handler: mux}
//	if err := httpapm.Instrument(srv, apm.RequestObserver(), apm.Lifecycle()); err != nil {
//	    return err
//	}
//	return srv.ListenAndServe()
//
// Each request gets its own request scope from the requeststore package.
// Handlers attach labels to the current request with
// requeststore.SetLabels(r.Context(), labels).
package httpapm
