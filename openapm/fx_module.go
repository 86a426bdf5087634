package openapm

import (
	"context"

	"go.uber.org/fx"

	"github.com/aalemi-dev/openapm/logger"
	"github.com/aalemi-dev/openapm/tracer"
)

// TracerName names the tracer the agent's spans are started from.
const TracerName = "github.com/aalemi-dev/openapm"

// FXModule provides *APM, starts the metrics listener when the application
// starts and shuts the agent down when it stops.
//
// Usage:
//
//	app := fx.New(
//	    logger.FXModule,
//	    openapm.FXModule,
//	    fx.Provide(
//	        func() logger.Config { return logger.Config{Level: logger.Info} },
//	        func() (openapm.Config, error) { return openapm.LoadConfig("openapm.yaml") },
//	    ),
//	    fx.Invoke(func(apm *openapm.APM, srv *http.Server) error {
//	        apm.Provide(openapm.HTTP, srv)
//	        _, err := apm.Instrument(openapm.HTTP)
//	        return err
//	    }),
//	)
//
// Dependencies required by this module:
// - An openapm.Config instance must be available in the dependency injection container
// - A logger.Logger and a tracer.Tracer are optional
var FXModule = fx.Module("openapm",
	fx.Provide(NewAPM),
	fx.Invoke(RegisterAPMLifecycle),
)

// Params groups the dependencies of NewAPM.
type Params struct {
	fx.In

	Config Config
	Logger logger.Logger `optional:"true"`
	Tracer tracer.Tracer `optional:"true"`
}

// NewAPM builds the agent from injected dependencies.
func NewAPM(p Params) (*APM, error) {
	var opts []Option
	if p.Logger != nil {
		opts = append(opts, WithLogger(p.Logger))
	}
	if p.Tracer != nil {
		opts = append(opts, WithTracer(p.Tracer.Tracer(TracerName)))
	}
	return New(p.Config, opts...)
}

// RegisterAPMLifecycle starts the agent on application start and shuts it
// down on stop.
//
// Note: This function is automatically invoked by the FXModule and does not need
// to be called directly in application code.
func RegisterAPMLifecycle(lc fx.Lifecycle, apm *APM) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return apm.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return apm.Shutdown(ctx)
		},
	})
}
