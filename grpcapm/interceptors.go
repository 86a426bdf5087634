package grpcapm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/aalemi-dev/openapm/observability"
	"github.com/aalemi-dev/openapm/requeststore"
)

// Component is reported in RequestContext.Component.
const Component = "grpc"

// Method is reported in RequestContext.Method for every call.
const Method = "GRPC"

// Option configures the interceptors.
type Option func(*options)

type options struct {
	store      *requeststore.Store
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
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

// WithStore selects the store call scopes are created in.
func WithStore(store *requeststore.Store) Option {
	return func(o *options) {
		if store != nil {
			o.store = store
		}
	}
}

// WithTracer starts a server span for every call, continuing the trace found
// in the incoming metadata.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithPropagator overrides the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *options) {
		o.propagator = p
	}
}

// UnaryServerInterceptor times unary calls and reports them to obs.
func UnaryServerInterceptor(obs observability.RequestObserver, opts ...Option) grpc.UnaryServerInterceptor {
	o := newOptions(opts)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		c := o.begin(ctx, info.FullMethod)
		defer func() {
			c.end(obs, err, recover())
		}()
		return handler(c.ctx, req)
	}
}

// StreamServerInterceptor times streaming calls, from the start of the
// handler until it returns, and reports them to obs.
func StreamServerInterceptor(obs observability.RequestObserver, opts ...Option) grpc.StreamServerInterceptor {
	o := newOptions(opts)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		c := o.begin(ss.Context(), info.FullMethod)
		defer func() {
			c.end(obs, err, recover())
		}()
		return handler(srv, &scopedStream{ServerStream: ss, ctx: c.ctx})
	}
}

type call struct {
	ctx    context.Context
	method string
	start  time.Time
	state  *requeststore.State
	span   trace.Span
}

func (o *options) begin(ctx context.Context, fullMethod string) *call {
	c := &call{method: fullMethod, start: time.Now(), state: requeststore.NewState()}
	ctx = o.store.With(ctx, c.state)
	if o.tracer != nil {
		md, _ := metadata.FromIncomingContext(ctx)
		ctx = o.propagator.Extract(ctx, metadataCarrier(md))
		ctx, c.span = o.tracer.Start(ctx, fullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("rpc.system", "grpc")),
		)
	}
	c.ctx = ctx
	return c
}

// end reports the call. A panic is reported as Internal and re-raised.
func (c *call) end(obs observability.RequestObserver, err error, recovered any) {
	code := status.Code(err)
	if recovered != nil {
		code = grpccodes.Internal
	}

	if c.span != nil {
		c.span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))
		if code != grpccodes.OK {
			c.span.SetStatus(codes.Error, code.String())
		}
		c.span.End()
	}

	if obs != nil {
		obs.ObserveRequest(c.ctx, observability.RequestContext{
			Component: Component,
			Method:    Method,
			Path:      c.method,
			Route:     c.method,
			Status:    code.String(),
			Duration:  time.Since(c.start),
			Labels:    c.state.Labels(),
		})
	}

	if recovered != nil {
		panic(recovered)
	}
}

// scopedStream carries the call scope to the stream handler.
type scopedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *scopedStream) Context() context.Context {
	return s.ctx
}

// metadataCarrier adapts incoming metadata for trace extraction.
type metadataCarrier metadata.MD

func (m metadataCarrier) Get(key string) string {
	values := metadata.MD(m).Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (m metadataCarrier) Set(key, value string) {
	metadata.MD(m).Set(key, value)
}

func (m metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
