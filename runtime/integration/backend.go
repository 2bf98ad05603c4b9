package integration

import (
	"context"

	"github.com/launchlab/integrations/runtime/integration/callerrors"
)

type (
	// Backend performs the provider-specific work of a call: transport, auth,
	// pagination and mapping provider failures into the error taxonomy.
	//
	// Invoke receives calls whose arguments already passed input validation.
	// It either returns a Response or an error. Returned errors that wrap a
	// *callerrors.Info are passed through to the caller; any other error is
	// reported as INTERNAL_ERROR. Invoke must honor ctx cancellation.
	Backend interface {
		Invoke(ctx context.Context, call *Call) (*Response, error)
	}

	// BackendFunc adapts a function to the Backend interface.
	BackendFunc func(ctx context.Context, call *Call) (*Response, error)

	// Response is what a backend reports for one invocation.
	Response struct {
		OK    bool
		Data  map[string]any
		Raw   any
		Meta  Meta
		Error *callerrors.Info
	}

	// StatusReporter is implemented by backends that can describe their health
	// and credential state without side effects.
	StatusReporter interface {
		Status(ctx context.Context) Status
	}

	// Status describes backend health and auth state.
	Status struct {
		Available bool      `json:"available"`
		Auth      AuthState `json:"auth"`
		Detail    string    `json:"detail,omitempty"`
	}

	// AuthState summarizes credential availability.
	AuthState string
)

const (
	AuthConfigured  AuthState = "configured"
	AuthMissing     AuthState = "missing"
	AuthNotRequired AuthState = "not_required"
	AuthUnknown     AuthState = "unknown"
)

// Invoke calls f.
func (f BackendFunc) Invoke(ctx context.Context, call *Call) (*Response, error) {
	return f(ctx, call)
}

// Success builds a successful response.
func Success(data map[string]any, meta Meta) *Response {
	return &Response{OK: true, Data: data, Meta: meta}
}

// Failure builds a failed response.
func Failure(info *callerrors.Info) *Response {
	return &Response{Error: info}
}
