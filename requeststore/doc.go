// Package requeststore gives code running underneath an instrumented entry
// point access to a per-request label bag without threading it through every
// call.
//
// The bag travels inside context.Context. An entry point (the HTTP
// middleware, the gRPC interceptors) opens a scope with Run or With; anything
// that receives the request context, including goroutines started with it,
// can add labels with SetLabels. Concurrent requests each carry their own
// State, so labels set while handling one request never show up on another.
//
//	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
//	    requeststore.SetLabels(r.Context(), map[string]any{"customer_tier": "gold"})
//	    ...
//	})
//
// Calling SetLabels with a context that carries no scope does nothing, so
// business code may call it unconditionally.
package requeststore
