package tracer

import (
	"context"

	"go.uber.org/fx"
)

// FXModule provides *TracerClient and the Tracer interface and shuts the
// provider down when the application stops.
//
// Usage:
//
//	app := fx.New(
//	    tracer.FXModule,
//	    fx.Provide(func() tracer.Config { return tracer.Config{ServiceName: "checkout"} }),
//	)
var FXModule = fx.Module("tracer",
	fx.Provide(
		NewClient,
		fx.Annotate(
			func(t *TracerClient) Tracer { return t },
			fx.As(new(Tracer)),
		),
	),
	fx.Invoke(RegisterTracerLifecycle),
)

// RegisterTracerLifecycle flushes pending spans on application stop.
func RegisterTracerLifecycle(lc fx.Lifecycle, tracer *TracerClient) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tracer.Shutdown(ctx)
		},
	})
}
