package grpcapm

import (
	"context"
	"errors"
	"net"
	"sync"

	"google.golang.org/grpc"

	"github.com/aalemi-dev/openapm/events"
	"github.com/aalemi-dev/openapm/observability"
	"github.com/aalemi-dev/openapm/shim"
)

// ErrNilFactory is returned by Instrument when no factory is given.
var ErrNilFactory = errors.New("grpcapm: nil factory")

// Server is a *grpc.Server whose Serve, Stop and GracefulStop go through
// replaceable hooks, so they can be instrumented after construction.
type Server struct {
	*grpc.Server

	ServeFunc        func(net.Listener) error
	StopFunc         func()
	GracefulStopFunc func()
}

// Serve calls ServeFunc.
func (s *Server) Serve(lis net.Listener) error {
	return s.ServeFunc(lis)
}

// Stop calls StopFunc.
func (s *Server) Stop() {
	s.StopFunc()
}

// GracefulStop calls GracefulStopFunc.
func (s *Server) GracefulStop() {
	s.GracefulStopFunc()
}

// Factory creates servers. Applications create their servers through a
// Factory variable so Instrument can wrap it.
type Factory func(opts ...grpc.ServerOption) *Server

// NewServer is the default Factory.
func NewServer(opts ...grpc.ServerOption) *Server {
	gs := grpc.NewServer(opts...)
	return &Server{
		Server:           gs,
		ServeFunc:        gs.Serve,
		StopFunc:         gs.Stop,
		GracefulStopFunc: gs.GracefulStop,
	}
}

var instrumentMu sync.Mutex

// Instrument wraps *factory so that every server it creates reports its
// calls to obs and, when lifecycle is non-nil, emits ApplicationStarted on
// its first Serve and ApplicationStopped on its first Stop or GracefulStop.
//
// The timing interceptors are chained ahead of the caller's chained
// interceptors. Instrumenting the same factory again is a no-op.
//
// Example:
//
//	var newServer grpcapm.Factory = grpcapm.NewServer
//
//	if err := grpcapm.Instrument(&newServer, apm.RequestObserver(), apm.Lifecycle()); err != nil {
//	    return err
//	}
//	srv := newServer()
//	pb.RegisterGreeterServer(srv, &greeter{})
//	return srv.Serve(lis)
func Instrument(factory *Factory, obs observability.RequestObserver, lifecycle events.Lifecycle, opts ...Option) error {
	if factory == nil {
		return ErrNilFactory
	}

	instrumentMu.Lock()
	defer instrumentMu.Unlock()

	if shim.IsWrapped(factory) {
		return nil
	}

	_, err := shim.Wrap(factory, "grpcapm.Factory", func(original Factory) Factory {
		return func(serverOpts ...grpc.ServerOption) *Server {
			all := make([]grpc.ServerOption, 0, len(serverOpts)+2)
			all = append(all,
				grpc.ChainUnaryInterceptor(UnaryServerInterceptor(obs, opts...)),
				grpc.ChainStreamInterceptor(StreamServerInterceptor(obs, opts...)),
			)
			all = append(all, serverOpts...)

			srv := original(all...)
			if srv != nil && lifecycle != nil {
				hookLifecycle(srv, lifecycle)
			}
			return srv
		}
	})
	return err
}

// Uninstrument restores the original factory. Servers already created stay
// instrumented.
func Uninstrument(factory *Factory) bool {
	instrumentMu.Lock()
	defer instrumentMu.Unlock()
	return shim.Unwrap(factory)
}

func hookLifecycle(srv *Server, lifecycle events.Lifecycle) {
	var started, stopped sync.Once
	stop := func() {
		stopped.Do(func() {
			lifecycle.ApplicationStopped(context.Background())
			// The hooks stay in place; only the registry lets go of the server.
			shim.Forget(&srv.ServeFunc)
			shim.Forget(&srv.StopFunc)
			shim.Forget(&srv.GracefulStopFunc)
		})
	}

	_, _ = shim.Wrap(&srv.ServeFunc, "grpcapm.Server.Serve", func(original func(net.Listener) error) func(net.Listener) error {
		return func(lis net.Listener) error {
			started.Do(func() { lifecycle.ApplicationStarted(context.Background()) })
			return original(lis)
		}
	})
	_, _ = shim.Wrap(&srv.StopFunc, "grpcapm.Server.Stop", func(original func()) func() {
		return func() {
			original()
			stop()
		}
	})
	_, _ = shim.Wrap(&srv.GracefulStopFunc, "grpcapm.Server.GracefulStop", func(original func()) func() {
		return func() {
			original()
			stop()
		}
	})
}
