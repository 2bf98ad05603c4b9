package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/integration/schema"
	"github.com/launchlab/integrations/runtime/telemetry"
)

// DefaultTimeout bounds backend invocations when a call does not set
// timeout_ms.
const DefaultTimeout = 30 * time.Second

const (
	spanDispatch   = "integration.dispatch"
	metricCalls    = "integration.calls"
	metricDuration = "integration.call.duration"
	outcomeOK      = "OK"
)

var (
	// ErrNilRegistry is returned by NewDispatcher when no registry is given.
	ErrNilRegistry = errors.New("integration: registry is required")
	// ErrNilBackend is returned by NewDispatcher when no backend is given.
	ErrNilBackend = errors.New("integration: backend is required")
)

type (
	// Dispatcher runs exactly one attempt of a call through the sequence
	// resolve spec, validate input, invoke backend, validate output, attach
	// metadata. Any failure short-circuits into a failed Result. Dispatcher
	// holds no mutable state and is safe for concurrent use.
	Dispatcher struct {
		registry *method.Registry
		backend  Backend
		timeout  time.Duration
		now      func() time.Time

		logger  telemetry.Logger
		tracer  telemetry.Tracer
		metrics telemetry.Metrics
	}

	// Option configures a Dispatcher.
	Option func(*Dispatcher)

	outcome struct {
		resp *Response
		err  error
	}
)

// WithLogger configures the dispatcher logger. When nil, the dispatcher uses
// a noop logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTracer configures the dispatcher tracer.
func WithTracer(tracer telemetry.Tracer) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// WithMetrics configures the dispatcher metrics recorder.
func WithMetrics(metrics telemetry.Metrics) Option {
	return func(d *Dispatcher) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// WithDefaultTimeout sets the timeout applied to calls without timeout_ms.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithClock overrides the clock used to compute latency.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher returns a dispatcher serving the methods of reg through
// backend.
func NewDispatcher(reg *method.Registry, backend Backend, opts ...Option) (*Dispatcher, error) {
	if reg == nil {
		return nil, ErrNilRegistry
	}
	if backend == nil {
		return nil, ErrNilBackend
	}
	d := &Dispatcher{
		registry: reg,
		backend:  backend,
		timeout:  DefaultTimeout,
		now:      time.Now,
		logger:   telemetry.NewNoopLogger(),
		tracer:   telemetry.NewNoopTracer(),
		metrics:  telemetry.NewNoopMetrics(),
	}
	for _, o := range opts {
		if o != nil {
			o(d)
		}
	}
	return d, nil
}

// Registry returns the method registry served by d.
func (d *Dispatcher) Registry() *method.Registry {
	return d.registry
}

// Dispatch executes one attempt of call. It never returns a Go error and
// never panics: every failure is reported through Result.Error.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (res *Result) {
	start := d.now()
	if call.TraceID == "" {
		call.TraceID = uuid.NewString()
	}
	ctx, span := d.tracer.Start(ctx, spanDispatch,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("integration.method_id", call.MethodID),
			attribute.String("integration.trace_id", call.TraceID),
		),
	)
	defer func() {
		if r := recover(); r != nil {
			res = d.fail(call, start, callerrors.Internal(fmt.Errorf("panic: %v", r)))
		}
		d.observe(ctx, span, call, res, start)
		span.End()
	}()

	spec, ok := d.registry.Resolve(call.MethodID)
	if !ok {
		return d.fail(call, start, callerrors.Newf(callerrors.ValidationFailed, "unknown method id %q", call.MethodID))
	}
	if spec.Deprecated {
		d.logger.Warn(ctx, "deprecated method called",
			"method_id", call.MethodID, "replacement", spec.ReplacementID.String(), "trace_id", call.TraceID)
	}
	span.AddEvent("spec_resolved")

	if err := call.validateEnvelope(); err != nil {
		return d.fail(call, start, callerrors.New(callerrors.ValidationFailed, err.Error()))
	}
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	normalized, err := spec.Input.Validate(args)
	if err != nil {
		return d.fail(call, start, validationInfo("invalid arguments for "+call.MethodID, err))
	}
	call.Args, _ = normalized.(map[string]any)
	span.AddEvent("input_validated")

	resp, info := d.invoke(ctx, call)
	if info != nil {
		return d.fail(call, start, info)
	}
	span.AddEvent("backend_invoked")

	out, err := spec.Output.Validate(resp.Data)
	if err != nil {
		return d.fail(call, start, validationInfo("backend payload violates output schema of "+call.MethodID, err))
	}
	data, ok := out.(map[string]any)
	if !ok {
		return d.fail(call, start, callerrors.Newf(callerrors.InternalError, "backend payload of %s is not an object", call.MethodID))
	}
	span.AddEvent("output_validated")

	meta := resp.Meta
	meta.Warnings = append([]string(nil), resp.Meta.Warnings...)
	if meta.LatencyMS == 0 {
		meta.LatencyMS = d.now().Sub(start).Milliseconds()
	}
	if meta.Provenance == nil {
		meta.Provenance = call.Provenance.Clone()
	}
	if spec.Deprecated {
		meta.Warnings = append(meta.Warnings,
			fmt.Sprintf("method %s is deprecated, use %s", spec.ID, spec.ReplacementID))
	}
	return &Result{
		OK:       true,
		TraceID:  call.TraceID,
		MethodID: call.MethodID,
		Data:     data,
		Raw:      resp.Raw,
		Meta:     &meta,
	}
}

// invoke runs the backend in its own goroutine and waits at most the call
// timeout. A backend that ignores cancellation is abandoned; its late result
// is discarded.
func (d *Dispatcher) invoke(ctx context.Context, call Call) (*Response, *callerrors.Info) {
	timeout := d.timeout
	if call.TimeoutMS > 0 {
		timeout = time.Duration(call.TimeoutMS) * time.Millisecond
	}
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		resp, err := d.backend.Invoke(ictx, &call)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ictx.Err() != nil {
			return nil, interrupted(ctx, timeout)
		}
		return checkResponse(o)
	case <-ictx.Done():
		return nil, interrupted(ctx, timeout)
	}
}

func interrupted(parent context.Context, timeout time.Duration) *callerrors.Info {
	if errors.Is(parent.Err(), context.Canceled) {
		return callerrors.New(callerrors.InternalError, "call canceled")
	}
	return callerrors.TimeoutAfter(timeout)
}

// checkResponse enforces the backend contract.
func checkResponse(o outcome) (*Response, *callerrors.Info) {
	if o.err != nil {
		var info *callerrors.Info
		if errors.As(o.err, &info) {
			return nil, checkCode(info)
		}
		return nil, callerrors.Internal(o.err)
	}
	resp := o.resp
	switch {
	case resp == nil:
		return nil, callerrors.New(callerrors.InternalError, "backend returned no response")
	case resp.OK && resp.Error != nil:
		return nil, callerrors.New(callerrors.InternalError, "backend reported success with an error")
	case resp.OK && len(resp.Data) == 0:
		return nil, callerrors.New(callerrors.InternalError, "backend reported success without data")
	case !resp.OK && resp.Error == nil:
		return nil, callerrors.New(callerrors.InternalError, "backend reported failure without an error")
	case !resp.OK:
		return nil, checkCode(resp.Error)
	}
	return resp, nil
}

func checkCode(info *callerrors.Info) *callerrors.Info {
	if !info.Code.Valid() {
		return callerrors.Newf(callerrors.InternalError, "backend returned unknown error code %q: %s", info.Code, info.Message)
	}
	return info.Clone()
}

func validationInfo(msg string, err error) *callerrors.Info {
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		return callerrors.Internal(err)
	}
	issues := make([]*callerrors.FieldIssue, 0, len(verr.Issues))
	for _, is := range verr.Issues {
		issues = append(issues, &callerrors.FieldIssue{Field: is.Field, Constraint: is.Constraint, Message: is.Message})
	}
	return callerrors.Validation(fmt.Sprintf("%s: %s", msg, verr.Error()), issues)
}

func (d *Dispatcher) fail(call Call, start time.Time, info *callerrors.Info) *Result {
	return &Result{
		TraceID:  call.TraceID,
		MethodID: call.MethodID,
		Meta: &Meta{
			LatencyMS:  d.now().Sub(start).Milliseconds(),
			Provenance: call.Provenance.Clone(),
		},
		Error: info,
	}
}

func (d *Dispatcher) observe(ctx context.Context, span telemetry.Span, call Call, res *Result, start time.Time) {
	label := outcomeOK
	if !res.OK {
		label = string(res.Error.Code)
	}
	d.metrics.IncCounter(metricCalls, 1, "method", call.MethodID, "outcome", label)
	d.metrics.RecordTimer(metricDuration, d.now().Sub(start), "method", call.MethodID, "outcome", label)
	if res.OK {
		span.SetStatus(codes.Ok, "ok")
		return
	}
	span.RecordError(res.Error)
	span.SetStatus(codes.Error, string(res.Error.Code))
	if res.Error.Code == callerrors.InternalError {
		d.logger.Error(ctx, "integration call failed",
			"method_id", call.MethodID, "trace_id", call.TraceID, "err", res.Error)
		return
	}
	d.logger.Debug(ctx, "integration call failed",
		"method_id", call.MethodID, "trace_id", call.TraceID, "code", string(res.Error.Code))
}
