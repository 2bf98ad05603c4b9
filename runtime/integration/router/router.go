// Package router exposes integrations to consumers as named operations. A
// Router translates one operation name and argument bag into zero or more
// dispatcher calls and renders a single response.
//
// Every router answers the universal "help" and "status" operations. Catalog
// routers additionally answer "list_providers" and "list_methods", which
// enumerate registries without invoking any backend.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/integration/retry"
	"github.com/launchlab/integrations/runtime/telemetry"
)

// Universal and catalog operation names.
const (
	OpHelp          = "help"
	OpStatus        = "status"
	OpListProviders = "list_providers"
	OpListMethods   = "list_methods"
)

var reserved = map[string]bool{
	OpHelp:          true,
	OpStatus:        true,
	OpListProviders: true,
	OpListMethods:   true,
}

type (
	// Operation maps a consumer-facing operation name to registry methods.
	Operation struct {
		// Name is the operation name consumers send as "op".
		Name string
		// Summary is a one-line description shown by help.
		Summary string
		// Usage is the long-form usage document for the operation.
		Usage string
		// Methods lists the methods the operation may call.
		Methods []method.Ident
		// Plan builds the calls for a request. When nil, one call per method
		// is issued with the request arguments.
		Plan PlanFunc
	}

	// PlanFunc turns a request into calls. Calls may only target the
	// operation's Methods. Returning a *callerrors.Info reports that error
	// as is; any other error is reported as VALIDATION_FAILED.
	PlanFunc func(req Request) ([]integration.Call, error)

	// Request is one operation invocation.
	Request struct {
		Op         string                  `json:"op"`
		Args       map[string]any          `json:"args,omitempty"`
		TraceID    string                  `json:"trace_id,omitempty"`
		Provenance *integration.Provenance `json:"provenance,omitempty"`
		TimeoutMS  int                     `json:"timeout_ms,omitempty"`
		Cursor     string                  `json:"cursor,omitempty"`
		DryRun     bool                    `json:"dry_run,omitempty"`
	}

	// Response is the rendered outcome of a request.
	Response struct {
		OK      bool                  `json:"ok"`
		Op      string                `json:"op"`
		Text    string                `json:"text,omitempty"`
		Data    map[string]any        `json:"data,omitempty"`
		Results []*integration.Result `json:"results,omitempty"`
		Error   *callerrors.Info      `json:"error,omitempty"`
	}

	// Router is the consumer-facing entry point of one tool.
	Router struct {
		name         string
		description  string
		integrations []*integration.Integration
		byMethod     map[method.Ident]*integration.Integration
		ops          map[string]Operation
		order        []string
		catalog      bool
		retry        bool
		retryOpts    []retry.Option
		logger       telemetry.Logger
	}

	// Option configures a Router.
	Option func(*Router)
)

// WithCatalog enables the list_providers and list_methods operations.
func WithCatalog() Option {
	return func(r *Router) { r.catalog = true }
}

// WithRetry routes calls through retry.Do so that retriable failures of
// retry-safe methods are re-issued according to each call's retry policy.
func WithRetry(opts ...retry.Option) Option {
	return func(r *Router) {
		r.retry = true
		r.retryOpts = opts
	}
}

// WithLogger configures the router logger.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a router over integrations. It fails when two integrations share
// a name or serve the same method, when an operation name is empty, reserved
// or duplicated, or when an operation references a method no integration
// serves.
func New(name, description string, integrations []*integration.Integration, ops []Operation, opts ...Option) (*Router, error) {
	if name == "" {
		return nil, errors.New("router: name is required")
	}
	r := &Router{
		name:        name,
		description: description,
		byMethod:    make(map[method.Ident]*integration.Integration),
		ops:         make(map[string]Operation, len(ops)),
		logger:      telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	var errs []error
	names := make(map[string]bool, len(integrations))
	for _, in := range integrations {
		if in == nil {
			errs = append(errs, errors.New("router: nil integration"))
			continue
		}
		if names[in.Name()] {
			errs = append(errs, fmt.Errorf("router: duplicate integration %q", in.Name()))
			continue
		}
		names[in.Name()] = true
		r.integrations = append(r.integrations, in)
		for _, id := range in.Registry().IDs() {
			if other, ok := r.byMethod[id]; ok {
				errs = append(errs, fmt.Errorf("router: method %q served by both %q and %q", id, other.Name(), in.Name()))
				continue
			}
			r.byMethod[id] = in
		}
	}
	for _, op := range ops {
		switch {
		case op.Name == "":
			errs = append(errs, errors.New("router: operation name is required"))
			continue
		case reserved[op.Name]:
			errs = append(errs, fmt.Errorf("router: operation %q is reserved", op.Name))
			continue
		case r.ops[op.Name].Name != "":
			errs = append(errs, fmt.Errorf("router: duplicate operation %q", op.Name))
			continue
		case len(op.Methods) == 0:
			errs = append(errs, fmt.Errorf("router: operation %q references no method", op.Name))
		}
		for _, id := range op.Methods {
			if _, ok := r.byMethod[id]; !ok {
				errs = append(errs, fmt.Errorf("router: operation %q references unknown method %q", op.Name, id))
			}
		}
		op.Methods = append([]method.Ident(nil), op.Methods...)
		r.ops[op.Name] = op
		r.order = append(r.order, op.Name)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Name returns the tool name.
func (r *Router) Name() string { return r.name }

// Operations returns every operation name the router answers, universal ones
// first.
func (r *Router) Operations() []string {
	out := []string{OpHelp, OpStatus}
	if r.catalog {
		out = append(out, OpListProviders, OpListMethods)
	}
	return append(out, r.order...)
}

// Handle answers one request. It never returns nil. An empty operation name
// behaves exactly like "help".
func (r *Router) Handle(ctx context.Context, req Request) *Response {
	op := strings.TrimSpace(req.Op)
	if op == "" {
		op = OpHelp
	}
	switch {
	case op == OpHelp:
		return r.help()
	case op == OpStatus:
		return r.status(ctx)
	case op == OpListProviders && r.catalog:
		return r.listProviders()
	case op == OpListMethods && r.catalog:
		return r.listMethods(req.Args)
	}
	o, ok := r.ops[op]
	if !ok {
		r.logger.Debug(ctx, "unknown router operation", "router", r.name, "op", op)
		info := callerrors.Newf(callerrors.ValidationFailed, "unknown operation %q for %s", op, r.name).
			WithHint("valid operations: " + strings.Join(r.Operations(), ", "))
		return &Response{Op: op, Error: info}
	}
	return r.route(ctx, o, req)
}

func (r *Router) route(ctx context.Context, op Operation, req Request) *Response {
	calls, err := r.plan(op, req)
	if err != nil {
		var info *callerrors.Info
		if !errors.As(err, &info) {
			info = callerrors.New(callerrors.ValidationFailed, err.Error())
		}
		return &Response{Op: op.Name, Error: info}
	}
	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	resp := &Response{OK: true, Op: op.Name}
	for _, call := range calls {
		if call.TraceID == "" {
			call.TraceID = traceID
		}
		if call.Provenance == nil {
			call.Provenance = req.Provenance.Clone()
		}
		if call.TimeoutMS == 0 {
			call.TimeoutMS = req.TimeoutMS
		}
		if call.Cursor == "" {
			call.Cursor = req.Cursor
		}
		call.DryRun = call.DryRun || req.DryRun
		res := r.dispatch(ctx, call)
		resp.Results = append(resp.Results, res)
		if !res.OK && resp.Error == nil {
			resp.OK = false
			resp.Error = res.Error
		}
	}
	switch len(resp.Results) {
	case 0:
		resp.Text = "no call needed"
	case 1:
		resp.Data = resp.Results[0].Data
	default:
		if resp.OK {
			data := make(map[string]any, len(resp.Results))
			for _, res := range resp.Results {
				data[res.MethodID] = res.Data
			}
			resp.Data = data
		}
	}
	return resp
}

func (r *Router) plan(op Operation, req Request) ([]integration.Call, error) {
	if op.Plan == nil {
		calls := make([]integration.Call, 0, len(op.Methods))
		for _, id := range op.Methods {
			calls = append(calls, integration.Call{MethodID: id.String(), Args: cloneArgs(req.Args)})
		}
		return calls, nil
	}
	calls, err := op.Plan(req)
	if err != nil {
		return nil, err
	}
	for _, c := range calls {
		if !op.allows(c.MethodID) {
			return nil, callerrors.Newf(callerrors.InternalError, "operation %q planned call to undeclared method %q", op.Name, c.MethodID)
		}
	}
	return calls, nil
}

func (r *Router) dispatch(ctx context.Context, call integration.Call) *integration.Result {
	in := r.byMethod[method.Ident(call.MethodID)]
	if r.retry {
		return retry.Do(ctx, in, call, r.retryOpts...).Result
	}
	return in.Dispatch(ctx, call)
}

func (op Operation) allows(id string) bool {
	for _, m := range op.Methods {
		if m.String() == id {
			return true
		}
	}
	return false
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
