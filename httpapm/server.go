package httpapm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/aalemi-dev/openapm/events"
	"github.com/aalemi-dev/openapm/observability"
	"github.com/aalemi-dev/openapm/shim"
)

// ErrNilServer is returned by Instrument when no server is given.
var ErrNilServer = errors.New("httpapm: nil server")

var instrumentMu sync.Mutex

// Instrument attaches the timing middleware to srv and hooks its lifecycle.
//
// The middleware wraps srv.Handler, so it runs before any middleware the
// application installed. A nil Handler is replaced by http.DefaultServeMux,
// which is what the server would have used. When the handler is a
// *http.ServeMux it is also used as the route resolver unless one is given.
//
// lifecycle, when non-nil, receives ApplicationStarted the first time the
// server starts serving and ApplicationStopped when srv.Shutdown is called.
//
// Instrumenting the same server again is a no-op.
func Instrument(srv *http.Server, obs observability.RequestObserver, lifecycle events.Lifecycle, opts ...Option) error {
	if srv == nil {
		return ErrNilServer
	}

	instrumentMu.Lock()
	defer instrumentMu.Unlock()

	if shim.IsWrapped(&srv.Handler) {
		return nil
	}

	if srv.Handler == nil {
		srv.Handler = http.DefaultServeMux
	}
	if mux, ok := srv.Handler.(*http.ServeMux); ok {
		opts = append([]Option{WithRouteResolver(mux)}, opts...)
	}

	if _, err := shim.Wrap(&srv.Handler, "http.Server.Handler", func(original http.Handler) http.Handler {
		return Middleware(obs, opts...)(original)
	}); err != nil {
		return err
	}

	if lifecycle == nil {
		return nil
	}

	if srv.BaseContext == nil {
		srv.BaseContext = func(net.Listener) context.Context { return context.Background() }
	}
	var started sync.Once
	if _, err := shim.Wrap(&srv.BaseContext, "http.Server.BaseContext", func(original func(net.Listener) context.Context) func(net.Listener) context.Context {
		return func(l net.Listener) context.Context {
			ctx := original(l)
			started.Do(func() { lifecycle.ApplicationStarted(ctx) })
			return ctx
		}
	}); err != nil {
		return err
	}

	var stopped sync.Once
	srv.RegisterOnShutdown(func() {
		stopped.Do(func() { lifecycle.ApplicationStopped(context.Background()) })
	})
	return nil
}

// Uninstrument restores the server's original handler and base context. The
// shutdown hook cannot be removed and stays registered.
func Uninstrument(srv *http.Server) bool {
	if srv == nil {
		return false
	}
	instrumentMu.Lock()
	defer instrumentMu.Unlock()

	shim.Unwrap(&srv.BaseContext)
	return shim.Unwrap(&srv.Handler)
}
