package httpapm

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/aalemi-dev/openapm/masking"
	"github.com/aalemi-dev/openapm/observability"
	"github.com/aalemi-dev/openapm/requeststore"
)

// Component is reported in RequestContext.Component.
const Component = "net/http"

// Middleware returns a middleware that times every request and reports it to
// obs once the handler returns.
//
// Each request runs in a fresh request scope, so labels set with
// requeststore.SetLabels(r.Context(), ...) anywhere below the middleware are
// attached to that request only.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("GET /api/router/{id}", getRouter)
//	handler := httpapm.Middleware(apm.RequestObserver())(mux)
func Middleware(obs observability.RequestObserver, opts ...Option) func(http.Handler) http.Handler {
	o := newOptions(opts)
	return func(next http.Handler) http.Handler {
		return &handler{next: next, obs: obs, opts: o}
	}
}

type handler struct {
	next http.Handler
	obs  observability.RequestObserver
	opts *options
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	state := requeststore.NewState()
	ctx := h.opts.store.With(r.Context(), state)

	var span trace.Span
	if h.opts.tracer != nil {
		ctx = h.opts.propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))
		ctx, span = h.opts.tracer.Start(ctx, r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
	}

	rw := newResponseWriter(w)
	req := r.WithContext(ctx)

	defer func() {
		status := rw.status
		recovered := recover()
		if recovered != nil {
			status = http.StatusInternalServerError
		}

		route := h.route(r, req)
		if span != nil {
			if route != "" {
				span.SetName(r.Method + " " + route)
				span.SetAttributes(attribute.String("http.route", route))
			}
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			span.End()
		}

		if h.obs != nil {
			h.obs.ObserveRequest(ctx, observability.RequestContext{
				Component: Component,
				Method:    r.Method,
				Path:      r.URL.RequestURI(),
				Route:     route,
				Status:    strconv.Itoa(status),
				Duration:  time.Since(start),
				Labels:    state.Labels(),
				PathValue: req.PathValue,
			})
		}

		if recovered != nil {
			panic(recovered)
		}
	}()

	h.next.ServeHTTP(rw, req)
}

// route returns the matched route template. ServeMux stores the pattern on
// the request it dispatched, which is req unless a middleware replaced it.
func (h *handler) route(original, dispatched *http.Request) string {
	if dispatched.Pattern != "" {
		return masking.RouteTemplate(dispatched.Pattern)
	}
	if h.opts.resolver != nil {
		if _, pattern := h.opts.resolver.Handler(original); pattern != "" {
			return masking.RouteTemplate(pattern)
		}
	}
	return ""
}
