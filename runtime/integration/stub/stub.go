// Package stub provides an in-memory Backend with scripted responses and
// invocation counters, for tests and local demos.
package stub

import (
	"context"
	"sync"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
)

// Handler produces the response for one invocation.
type Handler func(ctx context.Context, call *integration.Call) (*integration.Response, error)

// Backend is a scripted integration.Backend. Methods without a handler fail
// with INTERNAL_ERROR.
type Backend struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
	last     map[string]integration.Call
	status   integration.Status
}

// New returns an empty stub backend reporting itself available.
func New() *Backend {
	return &Backend{
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
		last:     make(map[string]integration.Call),
		status:   integration.Status{Available: true, Auth: integration.AuthNotRequired},
	}
}

// On registers h for methodID.
func (b *Backend) On(methodID string, h Handler) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[methodID] = h
	return b
}

// Returns makes methodID succeed with data.
func (b *Backend) Returns(methodID string, data map[string]any) *Backend {
	return b.On(methodID, func(context.Context, *integration.Call) (*integration.Response, error) {
		return integration.Success(cloneMap(data), integration.Meta{}), nil
	})
}

// Fails makes methodID report the normalized error info.
func (b *Backend) Fails(methodID string, info *callerrors.Info) *Backend {
	return b.On(methodID, func(context.Context, *integration.Call) (*integration.Response, error) {
		return integration.Failure(info.Clone()), nil
	})
}

// Errors makes methodID return err from Invoke.
func (b *Backend) Errors(methodID string, err error) *Backend {
	return b.On(methodID, func(context.Context, *integration.Call) (*integration.Response, error) {
		return nil, err
	})
}

// Blocks makes methodID wait until the call context is done.
func (b *Backend) Blocks(methodID string) *Backend {
	return b.On(methodID, func(ctx context.Context, _ *integration.Call) (*integration.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

// SetStatus sets the status reported by Status.
func (b *Backend) SetStatus(s integration.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// Invoke implements integration.Backend.
func (b *Backend) Invoke(ctx context.Context, call *integration.Call) (*integration.Response, error) {
	b.mu.Lock()
	b.calls[call.MethodID]++
	b.last[call.MethodID] = *call
	h, ok := b.handlers[call.MethodID]
	b.mu.Unlock()
	if !ok {
		return nil, callerrors.Newf(callerrors.InternalError, "stub: no handler for %s", call.MethodID)
	}
	return h(ctx, call)
}

// Status implements integration.StatusReporter.
func (b *Backend) Status(context.Context) integration.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Calls returns how many times methodID was invoked.
func (b *Backend) Calls(methodID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[methodID]
}

// Total returns the number of invocations across all methods.
func (b *Backend) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// LastCall returns the most recent call received for methodID.
func (b *Backend) LastCall(methodID string) (integration.Call, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.last[methodID]
	return c, ok
}

// Reset clears invocation counters.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = make(map[string]int)
	b.last = make(map[string]integration.Call)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
