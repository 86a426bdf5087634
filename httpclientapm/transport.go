package httpclientapm

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/aalemi-dev/openapm/observability"
	"github.com/aalemi-dev/openapm/shim"
)

// Component is reported in OperationContext.Component.
const Component = "http-client"

// ErrNilClient is returned by Instrument when no client is given.
var ErrNilClient = errors.New("httpclientapm: nil client")

// Transport is an http.RoundTripper that times outbound requests and reports
// them to an Observer.
type Transport struct {
	// Base executes the request. nil means http.DefaultTransport.
	Base http.RoundTripper

	// Observer receives one OperationContext per round trip. May be nil.
	Observer observability.Observer

	// Tracer, when set, starts a client span and injects its context into
	// the outgoing headers.
	Tracer trace.Tracer

	// Propagator injects trace headers. nil means the global propagator.
	Propagator propagation.TextMapPropagator
}

// NewTransport wraps base.
func NewTransport(base http.RoundTripper, obs observability.Observer) *Transport {
	return &Transport{Base: base, Observer: obs}
}

// RoundTrip executes the request and reports it. The response and error of
// the base transport are returned unchanged.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	ctx := req.Context()
	var span trace.Span
	if t.Tracer != nil {
		ctx, span = t.Tracer.Start(ctx, "HTTP "+req.Method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.request.method", req.Method),
				attribute.String("server.address", req.URL.Host),
			),
		)
		defer span.End()

		propagator := t.Propagator
		if propagator == nil {
			propagator = otel.GetTextMapPropagator()
		}
		// RoundTrippers must not modify the caller's request.
		req = req.Clone(ctx)
		propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start)

	status := ""
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		}
	}

	if t.Observer != nil {
		t.Observer.ObserveOperation(ctx, observability.OperationContext{
			Component: Component,
			Operation: method(req),
			Resource:  origin(req),
			Status:    status,
			Duration:  duration,
			Error:     err,
		})
	}
	return resp, err
}

func method(req *http.Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}

// origin returns scheme://host of the request URL.
func origin(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	return req.URL.Scheme + "://" + req.URL.Host
}

var instrumentMu sync.Mutex

// Instrument replaces client.Transport with a Transport reporting to obs.
// A nil Transport is replaced by one wrapping http.DefaultTransport.
// Instrumenting the same client again is a no-op.
//
// Example:
//
//	if err := httpclientapm.Instrument(http.DefaultClient, apm.OperationObserver()); err != nil {
//	    return err
//	}
func Instrument(client *http.Client, obs observability.Observer, opts ...func(*Transport)) error {
	if client == nil {
		return ErrNilClient
	}

	instrumentMu.Lock()
	defer instrumentMu.Unlock()

	if shim.IsWrapped(&client.Transport) {
		return nil
	}
	if client.Transport == nil {
		client.Transport = http.DefaultTransport
	}
	_, err := shim.Wrap(&client.Transport, "http.Client.Transport", func(original http.RoundTripper) http.RoundTripper {
		t := NewTransport(original, obs)
		for _, opt := range opts {
			opt(t)
		}
		return t
	})
	return err
}

// WithTracer is an Instrument option that enables client spans.
func WithTracer(tracer trace.Tracer) func(*Transport) {
	return func(t *Transport) {
		t.Tracer = tracer
	}
}

// Uninstrument restores the client's original transport.
func Uninstrument(client *http.Client) bool {
	if client == nil {
		return false
	}
	instrumentMu.Lock()
	defer instrumentMu.Unlock()
	return shim.Unwrap(&client.Transport)
}
