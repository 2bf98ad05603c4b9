package retry

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/integration/schema"
	"github.com/launchlab/integrations/runtime/integration/stub"
)

const (
	listInvoices  = "stripe.invoices.list.v1"
	voidInvoice   = "stripe.invoices.void.v1"
	createInvoice = "stripe.invoices.create.v1"
)

func newIntegration(t *testing.T, backend integration.Backend) *integration.Integration {
	t.Helper()
	spec := func(id string, idem method.Idempotency) method.Spec {
		return method.Spec{ID: method.Ident(id), Input: schema.Any(), Output: schema.Any(), Idempotency: idem}
	}
	in, err := integration.New("stripe", backend, []method.Spec{
		spec(listInvoices, method.SafeRead),
		spec(voidInvoice, method.IdempotentWrite),
		spec(createInvoice, method.NonIdempotentWrite),
	})
	require.NoError(t, err)
	return in
}

func recordSleeps(sleeps *[]time.Duration) Option {
	return func(c *Config) {
		c.sleep = func(_ context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		}
	}
}

func TestDoRetriesRetriableFailures(t *testing.T) {
	attempts := 0
	var traceIDs []string
	backend := stub.New().On(listInvoices, func(_ context.Context, call *integration.Call) (*integration.Response, error) {
		attempts++
		traceIDs = append(traceIDs, call.TraceID)
		if attempts < 3 {
			return integration.Failure(callerrors.FromHTTPStatus(503, "", "down")), nil
		}
		return integration.Success(map[string]any{"items": []any{}}, integration.Meta{}), nil
	})
	var sleeps []time.Duration
	out := Do(context.Background(), newIntegration(t, backend), integration.Call{
		MethodID:    listInvoices,
		RetryPolicy: &integration.RetryPolicy{MaxRetries: 3, BackoffMS: 100},
	}, WithJitter(0), recordSleeps(&sleeps))

	require.True(t, out.OK)
	require.Equal(t, 3, out.Attempts)
	require.False(t, out.Exhausted)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeps)
	require.Len(t, traceIDs, 3)
	require.NotEmpty(t, traceIDs[0])
	require.Equal(t, traceIDs[0], traceIDs[1])
	require.Equal(t, traceIDs[0], traceIDs[2])
	require.Equal(t, traceIDs[0], out.TraceID)
}

func TestDoExhaustsAttempts(t *testing.T) {
	backend := stub.New().Fails(voidInvoice, callerrors.New(callerrors.RateLimited, "slow down"))
	var sleeps []time.Duration
	out := Do(context.Background(), newIntegration(t, backend), integration.Call{
		MethodID:    voidInvoice,
		RetryPolicy: &integration.RetryPolicy{MaxRetries: 2, BackoffMS: 10},
	}, recordSleeps(&sleeps))

	require.False(t, out.OK)
	require.True(t, out.Exhausted)
	require.Equal(t, 3, out.Attempts)
	require.Equal(t, 3, backend.Calls(voidInvoice))
	require.Len(t, sleeps, 2)
	require.Equal(t, callerrors.RateLimited, out.Error.Code)
}

func TestDoNeverRetriesNonIdempotentWrites(t *testing.T) {
	backend := stub.New().Fails(createInvoice, callerrors.New(callerrors.ProviderUnavailable, ""))
	out := Do(context.Background(), newIntegration(t, backend), integration.Call{
		MethodID:    createInvoice,
		RetryPolicy: &integration.RetryPolicy{MaxRetries: 5},
	})
	require.Equal(t, 1, out.Attempts)
	require.False(t, out.Exhausted)
	require.Equal(t, 1, backend.Calls(createInvoice))
}

func TestDoStopsOnNonRetriableFailure(t *testing.T) {
	backend := stub.New().Fails(listInvoices, callerrors.New(callerrors.AuthRequired, "token expired"))
	out := Do(context.Background(), newIntegration(t, backend), integration.Call{
		MethodID:    listInvoices,
		RetryPolicy: &integration.RetryPolicy{MaxRetries: 5},
	})
	require.Equal(t, 1, out.Attempts)
	require.Equal(t, callerrors.AuthRequired, out.Error.Code)
}

func TestDoUsesDefaultPolicy(t *testing.T) {
	backend := stub.New().Fails(listInvoices, callerrors.New(callerrors.Timeout, ""))
	in := newIntegration(t, backend)

	out := Do(context.Background(), in, integration.Call{MethodID: listInvoices})
	require.Equal(t, 1, out.Attempts)

	var sleeps []time.Duration
	out = Do(context.Background(), in, integration.Call{MethodID: listInvoices},
		WithDefaultPolicy(integration.RetryPolicy{MaxRetries: 1}), recordSleeps(&sleeps))
	require.Equal(t, 2, out.Attempts)
	require.Equal(t, []time.Duration{0}, sleeps)
}

func TestDoReturnsLastResultOnCancellation(t *testing.T) {
	backend := stub.New().Fails(listInvoices, callerrors.New(callerrors.Timeout, ""))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := Do(ctx, newIntegration(t, backend), integration.Call{
		MethodID:    listInvoices,
		RetryPolicy: &integration.RetryPolicy{MaxRetries: 3, BackoffMS: 1000},
	})
	require.Equal(t, 1, out.Attempts)
	require.False(t, out.OK)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Jitter = 0
	require.Equal(t, time.Duration(0), calculateBackoff(cfg, 0, 1))
	require.Equal(t, 250*time.Millisecond, calculateBackoff(cfg, 250, 1))
	require.Equal(t, time.Second, calculateBackoff(cfg, 250, 3))
	require.Equal(t, 10*time.Second, calculateBackoff(cfg, 250, 12))

	cfg.Jitter = 0.1
	for range 50 {
		d := calculateBackoff(cfg, 1000, 1)
		require.GreaterOrEqual(t, d, 900*time.Millisecond)
		require.LessOrEqual(t, d, 1100*time.Millisecond)
	}

	cfg.Jitter = 0.5
	for range 50 {
		require.LessOrEqual(t, calculateBackoff(cfg, 250, 12), cfg.MaxBackoff)
	}
	cfg.MaxBackoff = 0
	require.Equal(t, time.Duration(math.MaxInt64), calculateBackoff(cfg, math.MaxInt32, 64))
}
