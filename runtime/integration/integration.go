// Package integration implements the provider-integration call layer: a
// uniform Call/Result protocol in front of heterogeneous provider backends.
//
// An Integration bundles an immutable method registry with the backend that
// serves it and a Dispatcher that enforces the call contract: unknown method
// ids and invalid arguments fail before the backend is touched, successful
// payloads always conform to the method's output schema, and every failure is
// reported as a single normalized error.
package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/launchlab/integrations/runtime/integration/method"
)

// Integration is one provider integration instance.
type Integration struct {
	name       string
	backend    Backend
	dispatcher *Dispatcher
}

// New builds an integration from its method specs. It fails fast when specs is
// empty or any spec is invalid so that a broken integration never comes into
// existence.
func New(name string, backend Backend, specs []method.Spec, opts ...Option) (*Integration, error) {
	if name == "" {
		return nil, errors.New("integration: name is required")
	}
	reg, err := method.NewRegistry(specs...)
	if err != nil {
		return nil, fmt.Errorf("integration %q: %w", name, err)
	}
	d, err := NewDispatcher(reg, backend, opts...)
	if err != nil {
		return nil, fmt.Errorf("integration %q: %w", name, err)
	}
	return &Integration{name: name, backend: backend, dispatcher: d}, nil
}

// Name returns the integration name.
func (i *Integration) Name() string { return i.name }

// Registry returns the method registry.
func (i *Integration) Registry() *method.Registry { return i.dispatcher.Registry() }

// Dispatcher returns the call dispatcher.
func (i *Integration) Dispatcher() *Dispatcher { return i.dispatcher }

// Dispatch executes one attempt of call.
func (i *Integration) Dispatch(ctx context.Context, call Call) *Result {
	return i.dispatcher.Dispatch(ctx, call)
}

// Status reports backend health without invoking any method. Backends that do
// not implement StatusReporter are reported available with unknown auth.
func (i *Integration) Status(ctx context.Context) Status {
	if r, ok := i.backend.(StatusReporter); ok {
		return r.Status(ctx)
	}
	return Status{Available: true, Auth: AuthUnknown}
}
