package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level, tracingEnabled bool) (*LoggerClient, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewWithCore(core, Config{EnableTracing: tracingEnabled}), logs
}

func TestNewLoggerClient_Levels(t *testing.T) {
	t.Parallel()
	cases := []struct {
		level    string
		expected zapcore.Level
	}{
		{Debug, zapcore.DebugLevel},
		{Info, zapcore.InfoLevel},
		{Warning, zapcore.WarnLevel},
		{Error, zapcore.ErrorLevel},
		{"unknown", zapcore.InfoLevel},
	}

	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, parseLevel(tc.level))

			l, err := NewLoggerClient(Config{Level: tc.level, ServiceName: "test"})
			require.NoError(t, err)
			assert.True(t, l.Zap.Core().Enabled(tc.expected))
		})
	}
}

func TestLoggerClient_FieldsAndError(t *testing.T) {
	t.Parallel()
	l, logs := newObservedLogger(zapcore.DebugLevel, false)

	boom := errors.New("boom")
	l.Warn("wrap skipped", boom, map[string]interface{}{"slot": "handler"}, map[string]interface{}{"slot": "transport"})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "wrap skipped", entries[0].Message)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "transport", ctx["slot"])
}

func TestLoggerClient_LevelFiltering(t *testing.T) {
	t.Parallel()
	l, logs := newObservedLogger(zapcore.WarnLevel, false)

	l.Debug("debug", nil)
	l.Info("info", nil)
	l.Warn("warn", nil)
	l.Error("error", nil)

	assert.Equal(t, 2, logs.Len())
}

func TestLoggerClient_Named(t *testing.T) {
	t.Parallel()
	l, logs := newObservedLogger(zapcore.InfoLevel, false)

	l.Named("sqlapm").Info("driver wrapped", nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "sqlapm", logs.All()[0].ContextMap()["component"])
}

func TestLoggerClient_TracingFields(t *testing.T) {
	t.Parallel()
	tp := trace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	traced, tracedLogs := newObservedLogger(zapcore.InfoLevel, true)
	traced.InfoWithContext(ctx, "with span", nil)

	fields := tracedLogs.All()[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])

	plain, plainLogs := newObservedLogger(zapcore.InfoLevel, false)
	plain.ErrorWithContext(ctx, "no tracing", nil)
	assert.NotContains(t, plainLogs.All()[0].ContextMap(), "trace_id")
}

func TestLoggerClient_ContextWithoutSpan(t *testing.T) {
	t.Parallel()
	l, logs := newObservedLogger(zapcore.DebugLevel, true)

	l.DebugWithContext(context.Background(), "debug", nil)
	l.WarnWithContext(context.Background(), "warn", nil)

	for _, entry := range logs.All() {
		assert.NotContains(t, entry.ContextMap(), "trace_id")
	}
}

func TestNewNop(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		NewNop().Error("discarded", errors.New("x"))
	})
}

func TestFXModule(t *testing.T) {
	t.Parallel()
	var log Logger

	app := fxtest.New(t,
		FXModule,
		fx.Provide(func() Config { return Config{Level: Debug, ServiceName: "fx-test"} }),
		fx.Populate(&log),
	)
	app.RequireStart()
	app.RequireStop()

	assert.NotNil(t, log)
}
