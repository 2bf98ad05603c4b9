package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

const instrumentationName = "github.com/launchlab/integrations"

type (
	// ClueLogger writes through goa.design/clue/log. Format, output and debug
	// settings come from the context (log.Context with log.WithFormat,
	// log.WithOutput and log.WithDebug).
	ClueLogger struct {
		fields []log.Fielder
	}

	// ClueMetrics records through the global OTEL MeterProvider. Instruments
	// are created on first use and reused afterwards.
	ClueMetrics struct {
		meter      metric.Meter
		mu         sync.Mutex
		counters   map[string]metric.Float64Counter
		histograms map[string]metric.Float64Histogram
	}

	// ClueTracer creates spans through the global OTEL TracerProvider.
	ClueTracer struct {
		tracer trace.Tracer
	}

	otelSpan struct {
		span trace.Span
	}
)

// NewClueLogger returns a Logger that adds keyvals to every entry, e.g.
// NewClueLogger("component", "dispatcher").
func NewClueLogger(keyvals ...any) Logger {
	return &ClueLogger{fields: fielders(keyvals)}
}

// NewClueMetrics returns a Metrics recorder. Configure the global
// MeterProvider with otel.SetMeterProvider before dispatching calls.
func NewClueMetrics() Metrics {
	return &ClueMetrics{
		meter:      otel.Meter(instrumentationName),
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// NewClueTracer returns a Tracer backed by the global TracerProvider.
func NewClueTracer() Tracer {
	return &ClueTracer{tracer: otel.Tracer(instrumentationName)}
}

func (l *ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, l.entry(msg, keyvals)...)
}

func (l *ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, l.entry(msg, keyvals)...)
}

func (l *ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, l.entry(msg, keyvals)...)
}

// Error logs msg at error level. An error value under the "err" key becomes
// the entry error instead of a plain field.
func (l *ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	var err error
	rest := make([]any, 0, len(keyvals))
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 < len(keyvals) && keyvals[i] == "err" {
			if e, ok := keyvals[i+1].(error); ok {
				err = e
				continue
			}
		}
		rest = append(rest, keyvals[i:min(i+2, len(keyvals))]...)
	}
	log.Error(ctx, err, l.entry(msg, rest)...)
}

func (l *ClueLogger) entry(msg string, keyvals []any) []log.Fielder {
	out := make([]log.Fielder, 0, 1+len(l.fields)+len(keyvals)/2)
	out = append(out, log.KV{K: "msg", V: msg})
	out = append(out, l.fields...)
	return append(out, fielders(keyvals)...)
}

func (m *ClueMetrics) IncCounter(name string, value float64, tags ...string) {
	c, ok := m.counter(name)
	if !ok {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

// RecordTimer records duration in seconds.
func (m *ClueMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	h, ok := m.histogram(name, metric.WithUnit("s"))
	if !ok {
		return
	}
	h.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

// RecordGauge records value on a histogram named name_gauge since OTEL has no
// synchronous gauge.
func (m *ClueMetrics) RecordGauge(name string, value float64, tags ...string) {
	h, ok := m.histogram(name + "_gauge")
	if !ok {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *ClueMetrics) counter(name string) (metric.Float64Counter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c, true
	}
	c, err := m.meter.Float64Counter(name)
	if err != nil {
		return nil, false
	}
	m.counters[name] = c
	return c, true
}

func (m *ClueMetrics) histogram(name string, opts ...metric.Float64HistogramOption) (metric.Float64Histogram, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h, true
	}
	h, err := m.meter.Float64Histogram(name, opts...)
	if err != nil {
		return nil, false
	}
	m.histograms[name] = h
	return h, true
}

func (t *ClueTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, otelSpan{span: span}
}

// Span returns the span recorded in ctx, a non-recording span when none.
func (t *ClueTracer) Span(ctx context.Context) Span {
	return otelSpan{span: trace.SpanFromContext(ctx)}
}

func (s otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s otelSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(anyAttrs(attrs)...))
}

func (s otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s otelSpan) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

// fielders pairs k1, v1, k2, v2... into Clue fields. Non-string keys are
// dropped with their value; a dangling key gets a nil value.
func fielders(keyvals []any) []log.Fielder {
	var out []log.Fielder
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		out = append(out, log.KV{K: k, V: v})
	}
	return out
}

func tagAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, (len(tags)+1)/2)
	for i := 0; i < len(tags); i += 2 {
		var v string
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(tags[i], v))
	}
	return attrs
}

func anyAttrs(keyvals []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		attrs = append(attrs, attr(k, v))
	}
	return attrs
}

func attr(k string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(k, val)
	case bool:
		return attribute.Bool(k, val)
	case int:
		return attribute.Int(k, val)
	case int64:
		return attribute.Int64(k, val)
	case float64:
		return attribute.Float64(k, val)
	case time.Duration:
		return attribute.Int64(k, val.Milliseconds())
	case []string:
		return attribute.StringSlice(k, val)
	case error:
		return attribute.String(k, val.Error())
	case fmt.Stringer:
		return attribute.String(k, val.String())
	case nil:
		return attribute.String(k, "")
	default:
		return attribute.String(k, fmt.Sprint(val))
	}
}
