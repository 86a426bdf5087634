package logger

import (
	"context"
	"errors"
	"syscall"

	"go.uber.org/fx"
)

// FXModule provides *LoggerClient and the Logger interface, and flushes the
// logger when the application stops.
//
// Dependencies required by this module:
// - A logger.Config instance must be available in the dependency injection container
var FXModule = fx.Module("logger",
	fx.Provide(
		NewLoggerClient,
		fx.Annotate(
			func(l *LoggerClient) Logger { return l },
			fx.As(new(Logger)),
		),
	),
	fx.Invoke(RegisterLoggerLifecycle),
)

// RegisterLoggerLifecycle syncs the zap logger on stop. Sync errors caused by
// stderr being a terminal or pipe are ignored.
func RegisterLoggerLifecycle(lc fx.Lifecycle, client *LoggerClient) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			err := client.Zap.Sync()
			if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
				return nil
			}
			return err
		},
	})
}
