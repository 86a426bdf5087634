package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerClient wraps a zap.Logger with the map-of-fields API used across the
// agent's packages.
//
// LoggerClient implements the Logger interface.
type LoggerClient struct {
	// Zap is the underlying logger, exposed for callers that need zap
	// directly.
	Zap *zap.Logger

	tracingEnabled bool
}

// NewLoggerClient builds a JSON logger writing to stderr.
//
// Entries carry an ISO8601 "timestamp", a capitalised level, the caller, and
// the initial fields "pid" and "service".
//
// Example:
//
//	log, err := logger.NewLoggerClient(logger.Config{Level: logger.Info, ServiceName: "checkout"})
//	if err != nil {
//	    return err
//	}
//	log.Info("instrumentation ready", nil)
func NewLoggerClient(cfg Config) (*LoggerClient, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder
	encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
		Encoding:         "json",
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields: map[string]interface{}{
			"pid":     os.Getpid(),
			"service": cfg.ServiceName,
		},
	}

	callerSkip := cfg.CallerSkip
	if callerSkip <= 0 {
		callerSkip = 1
	}

	zl, err := config.Build(zap.AddCaller(), zap.AddCallerSkip(callerSkip))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &LoggerClient{
		Zap:            zl,
		tracingEnabled: cfg.EnableTracing,
	}, nil
}

// NewWithCore wraps an existing zapcore.Core, typically an observer core in
// tests or a core shared with the host application.
func NewWithCore(core zapcore.Core, cfg Config) *LoggerClient {
	return &LoggerClient{
		Zap:            zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		tracingEnabled: cfg.EnableTracing,
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *LoggerClient {
	return &LoggerClient{Zap: zap.NewNop()}
}

// Named returns a child logger whose entries carry a "component" field.
func (l *LoggerClient) Named(component string) *LoggerClient {
	return &LoggerClient{
		Zap:            l.Zap.With(zap.String("component", component)),
		tracingEnabled: l.tracingEnabled,
	}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case Debug:
		return zap.DebugLevel
	case Warning:
		return zap.WarnLevel
	case Error:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
