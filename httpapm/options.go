package httpapm

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/aalemi-dev/openapm/requeststore"
)

// RouteResolver reports the pattern a request would be dispatched to.
// *http.ServeMux implements it.
type RouteResolver interface {
	Handler(r *http.Request) (h http.Handler, pattern string)
}

// Option configures Middleware and Instrument.
type Option func(*options)

type options struct {
	store      *requeststore.Store
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	resolver   RouteResolver
}

func newOptions(opts []Option) *options {
	o := &options{store: requeststore.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.propagator == nil {
		o.propagator = otel.GetTextMapPropagator()
	}
	return o
}

// WithStore selects the store request scopes are created in. The default is
// requeststore.Default(), which is the store SetLabels writes to.
func WithStore(store *requeststore.Store) Option {
	return func(o *options) {
		if store != nil {
			o.store = store
		}
	}
}

// WithTracer starts a server span for every request.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithPropagator overrides the propagator used to extract the remote parent
// span. The default is the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *options) {
		o.propagator = p
	}
}

// WithRouteResolver sets the router consulted when the request that reached
// the handler chain does not carry a matched pattern, which happens when an
// intermediate middleware replaces the request before the mux sees it.
func WithRouteResolver(resolver RouteResolver) Option {
	return func(o *options) {
		o.resolver = resolver
	}
}
