package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"goa.design/clue/log"
)

func TestClueLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.Context(context.Background(), log.WithFormat(log.FormatJSON), log.WithOutput(&buf))

	logger := NewClueLogger("component", "dispatcher")
	logger.Error(ctx, "integration call failed", "method_id", "acme.widgets.get.v1", "err", errors.New("backend exploded"))

	out := buf.String()
	require.Contains(t, out, "integration call failed")
	require.Contains(t, out, "dispatcher")
	require.Contains(t, out, "acme.widgets.get.v1")
	require.Contains(t, out, "backend exploded")
}

func TestAttributeConversion(t *testing.T) {
	attrs := anyAttrs([]any{
		"method_id", "acme.widgets.get.v1",
		"ok", false,
		"attempt", 2,
		"latency", 1500 * time.Millisecond,
		"scopes", []string{"read"},
		"err", errors.New("boom"),
		42, "dropped",
		"cost", struct{ Units int }{3},
		"dangling",
	})
	require.Equal(t, []attribute.KeyValue{
		attribute.String("method_id", "acme.widgets.get.v1"),
		attribute.Bool("ok", false),
		attribute.Int("attempt", 2),
		attribute.Int64("latency", 1500),
		attribute.StringSlice("scopes", []string{"read"}),
		attribute.String("err", "boom"),
		attribute.String("cost", "{3}"),
		attribute.String("dangling", ""),
	}, attrs)

	require.Equal(t, []attribute.KeyValue{
		attribute.String("code", "TIMEOUT"),
		attribute.String("method", ""),
	}, tagAttrs([]string{"code", "TIMEOUT", "method"}))
}

func TestClueMetricsReuseInstruments(t *testing.T) {
	m := NewClueMetrics().(*ClueMetrics)
	m.IncCounter("integration.calls", 1, "outcome", "ok")
	m.IncCounter("integration.calls", 1, "outcome", "TIMEOUT")
	m.RecordTimer("integration.call.duration", time.Millisecond)
	m.RecordGauge("integration.inflight", 2)
	require.Len(t, m.counters, 1)
	require.Len(t, m.histograms, 2)
}
