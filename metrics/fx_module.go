package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/aalemi-dev/openapm/logger"
)

// FXModule provides *Metrics and the MetricsCollector interface and ties the
// metrics listener to the application lifecycle.
//
// Usage:
//
//	app := fx.New(
//	    metrics.FXModule,
//	    fx.Provide(func() metrics.Config {
//	        return metrics.Config{Address: ":9097", RuntimeMetrics: true}
//	    }),
//	)
//
// Dependencies required by this module:
// - A metrics.Config instance must be available in the dependency injection container
// - A logger.Logger is optional and used for listener lifecycle logs
var FXModule = fx.Module("metrics",
	fx.Provide(
		NewMetrics,
		fx.Annotate(
			func(m *Metrics) MetricsCollector { return m },
			fx.As(new(MetricsCollector)),
		),
	),
	fx.Invoke(RegisterMetricsLifecycle),
)

// LifecycleParams groups the dependencies of RegisterMetricsLifecycle.
type LifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Metrics   *Metrics
	Logger    logger.Logger `optional:"true"`
}

// RegisterMetricsLifecycle starts the listener on application start and
// shuts it down, emptying the registry, on stop.
//
// Note: This function is automatically invoked by the FXModule and does not need
// to be called directly in application code.
func RegisterMetricsLifecycle(p LifecycleParams) {
	if p.Logger != nil {
		p.Metrics.WithLogger(p.Logger)
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return p.Metrics.Start()
		},
		OnStop: func(ctx context.Context) error {
			return p.Metrics.Shutdown(ctx)
		},
	})
}
