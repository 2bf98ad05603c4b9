// Package retry re-issues integration calls on behalf of callers. The
// dispatcher performs exactly one attempt per call; this package implements
// the caller-level loop driven by a call's retry_policy and honoring the
// method's idempotency class.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/telemetry"
)

type (
	// Caller dispatches single call attempts and exposes the registry used to
	// look up idempotency classes. *integration.Dispatcher and
	// *integration.Integration implement it.
	Caller interface {
		Dispatch(ctx context.Context, call integration.Call) *integration.Result
		Registry() *method.Registry
	}

	// Config configures retry behavior.
	Config struct {
		// DefaultPolicy applies to calls that carry no retry_policy.
		DefaultPolicy integration.RetryPolicy
		// MaxBackoff caps the delay between attempts.
		MaxBackoff time.Duration
		// Jitter adds randomness to the backoff. A value of 0.1 adds up to
		// 10% in either direction.
		Jitter float64

		logger telemetry.Logger
		sleep  func(ctx context.Context, d time.Duration) error
	}

	// Option configures Do.
	Option func(*Config)

	// Outcome is the final result of a retried call.
	Outcome struct {
		*integration.Result
		// Attempts is the number of dispatches performed.
		Attempts int
		// Exhausted is true when the last attempt failed with a retriable
		// error and no attempt was left.
		Exhausted bool
	}
)

// DefaultConfig returns the default retry configuration: no retries unless
// the call asks for them, 10s backoff cap and 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxBackoff: 10 * time.Second,
		Jitter:     0.1,
		logger:     telemetry.NewNoopLogger(),
		sleep:      sleep,
	}
}

// WithDefaultPolicy sets the policy used for calls without retry_policy.
func WithDefaultPolicy(p integration.RetryPolicy) Option {
	return func(c *Config) { c.DefaultPolicy = p }
}

// WithMaxBackoff caps the delay between attempts.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxBackoff = d
		}
	}
}

// WithJitter sets the jitter fraction.
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 {
			c.Jitter = j
		}
	}
}

// WithLogger configures the logger used to report retries.
func WithLogger(l telemetry.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Do dispatches call through caller and re-issues the same call while the
// result is retriable, the method is not a non-idempotent write and attempts
// remain. Every attempt reuses the same method id and trace id; Do never
// falls back to another method or provider. Cancellation of ctx during a
// backoff returns the last result.
func Do(ctx context.Context, caller Caller, call integration.Call, opts ...Option) *Outcome {
	cfg := DefaultConfig()
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	if call.TraceID == "" {
		call.TraceID = uuid.NewString()
	}
	policy := cfg.DefaultPolicy
	if call.RetryPolicy != nil {
		policy = *call.RetryPolicy
	}
	maxAttempts := 1 + max(policy.MaxRetries, 0)
	if spec, ok := caller.Registry().Resolve(call.MethodID); !ok || !spec.Idempotency.Retryable() {
		maxAttempts = 1
	}

	out := &Outcome{}
	for {
		out.Result = caller.Dispatch(ctx, call)
		out.Attempts++
		if !out.Retriable() {
			return out
		}
		if out.Attempts >= maxAttempts {
			out.Exhausted = maxAttempts > 1
			if out.Exhausted {
				cfg.logger.Warn(ctx, "integration call retries exhausted",
					"method_id", call.MethodID, "trace_id", call.TraceID,
					"attempts", out.Attempts, "code", string(out.Error.Code))
			}
			return out
		}
		backoff := calculateBackoff(cfg, policy.BackoffMS, out.Attempts)
		cfg.logger.Info(ctx, "retrying integration call",
			"method_id", call.MethodID, "trace_id", call.TraceID,
			"attempt", out.Attempts, "code", string(out.Error.Code), "backoff", backoff.String())
		if err := cfg.sleep(ctx, backoff); err != nil {
			return out
		}
	}
}

// calculateBackoff computes the delay after the given attempt:
// backoffMS * 2^(attempt-1), capped at MaxBackoff, with jitter.
// calculateBackoff returns the delay before attempt. The result never
// exceeds MaxBackoff, jitter included.
func calculateBackoff(cfg Config, backoffMS, attempt int) time.Duration {
	if backoffMS <= 0 {
		return 0
	}
	backoff := float64(backoffMS) * float64(time.Millisecond) * math.Pow(2, float64(attempt-1))
	if cfg.Jitter > 0 {
		backoff += backoff * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter doesn't need crypto rand
	}
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if backoff >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(backoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
