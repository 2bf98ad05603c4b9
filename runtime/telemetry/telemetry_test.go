package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"

	"github.com/launchlab/integrations/runtime/telemetry"
)

func TestNoopLogger(_ *testing.T) {
	ctx := context.Background()
	logger := telemetry.NewNoopLogger()

	logger.Debug(ctx, "debug message", "key", "value")
	logger.Info(ctx, "info message", "key", "value")
	logger.Warn(ctx, "warn message", "key", "value")
	logger.Error(ctx, "error message", "key", "value")
}

func TestNoopMetrics(_ *testing.T) {
	metrics := telemetry.NewNoopMetrics()

	metrics.IncCounter("integration.calls", 1, "method_id", "example.widgets.get.v1")
	metrics.RecordTimer("integration.call.duration", 100*time.Millisecond)
	metrics.RecordGauge("integration.inflight", 3)
}

func TestNoopTracer(t *testing.T) {
	ctx := context.Background()
	tracer := telemetry.NewNoopTracer()

	newCtx, span := tracer.Start(ctx, "integration.dispatch")
	require.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.AddEvent("integration.backend_invoked", "method_id", "example.widgets.get.v1")
	span.SetStatus(codes.Ok, "ok")
	span.RecordError(errors.New("boom"))
	span.End()

	require.NotNil(t, tracer.Span(ctx))
}

func TestClueImplementationsDoNotPanic(t *testing.T) {
	ctx := context.Background()

	logger := telemetry.NewClueLogger()
	logger.Info(ctx, "dispatch", "method_id", "example.widgets.get.v1", 42)

	tracer := telemetry.NewClueTracer()
	ctx, span := tracer.Start(ctx, "integration.dispatch")
	span.AddEvent("event", "latency_ms", int64(3), "ok", true)
	span.End()
	require.NotNil(t, tracer.Span(ctx))

	metrics := telemetry.NewClueMetrics()
	metrics.IncCounter("integration.calls", 1, "code", "TIMEOUT")
	metrics.RecordTimer("integration.call.duration", time.Millisecond, "code")
}
