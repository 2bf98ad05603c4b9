package integration

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// MaxTimeoutMS is the largest timeout_ms whose duration fits in a
// time.Duration.
const MaxTimeoutMS = math.MaxInt64 / int64(time.Millisecond)

type (
	// Call is one request to execute a method. Calls are ephemeral values
	// created per invocation and never persisted.
	Call struct {
		// TraceID correlates the call across layers. Generated when empty.
		TraceID string `json:"trace_id"`
		// MethodID identifies the method to invoke, e.g. "stripe.invoices.list.v1".
		MethodID string `json:"method_id"`
		// Args maps argument names to values.
		Args map[string]any `json:"args"`
		// TimeoutMS bounds the backend invocation. Zero selects the dispatcher
		// default.
		TimeoutMS int `json:"timeout_ms,omitempty"`
		// RetryPolicy is a hint for caller-level retry wrappers. The dispatcher
		// itself performs exactly one attempt.
		RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`
		// Cursor is an optional pagination token.
		Cursor string `json:"cursor,omitempty"`
		// DryRun asks the backend to validate without side effects, when it
		// supports doing so.
		DryRun bool `json:"dry_run,omitempty"`
		// Provenance records the evidentiary origin of the call inputs.
		Provenance *Provenance `json:"provenance,omitempty"`
	}

	// RetryPolicy configures caller-level retries.
	RetryPolicy struct {
		MaxRetries int `json:"max_retries"`
		BackoffMS  int `json:"backoff_ms"`
	}

	// Provenance is a pointer to the source of a call's inputs.
	Provenance struct {
		SourceType SourceType `json:"source_type"`
		SourceRef  string     `json:"source_ref"`
	}

	// SourceType classifies a provenance record.
	SourceType string
)

const (
	SourceAPI           SourceType = "api"
	SourceArtifact      SourceType = "artifact"
	SourceToolOutput    SourceType = "tool_output"
	SourceEventStream   SourceType = "event_stream"
	SourceExpertHandoff SourceType = "expert_handoff"
	SourceUserDirective SourceType = "user_directive"
)

// Valid reports whether t is one of the declared source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceAPI, SourceArtifact, SourceToolOutput, SourceEventStream, SourceExpertHandoff, SourceUserDirective:
		return true
	default:
		return false
	}
}

// Validate reports malformed provenance. A nil provenance is valid.
func (p *Provenance) Validate() error {
	if p == nil {
		return nil
	}
	if !p.SourceType.Valid() {
		return fmt.Errorf("unknown provenance source_type %q", p.SourceType)
	}
	if p.SourceRef == "" {
		return fmt.Errorf("provenance source_ref is required")
	}
	return nil
}

// Clone returns a copy of p.
func (p *Provenance) Clone() *Provenance {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// StringArg returns the string argument named key, or "" when absent or not a
// string.
func (c *Call) StringArg(key string) string {
	s, _ := c.Args[key].(string)
	return s
}

// IntArg returns the integer argument named key. Arguments reach backends in
// normalized JSON form so numbers are usually json.Number.
func (c *Call) IntArg(key string) (int64, bool) {
	switch v := c.Args[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case float64:
		return int64(v), v == float64(int64(v))
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// FloatArg returns the numeric argument named key.
func (c *Call) FloatArg(key string) (float64, bool) {
	switch v := c.Args[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// BoolArg returns the boolean argument named key.
func (c *Call) BoolArg(key string) (bool, bool) {
	b, ok := c.Args[key].(bool)
	return b, ok
}

func (c *Call) validateEnvelope() error {
	if c.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms must not be negative")
	}
	if int64(c.TimeoutMS) > MaxTimeoutMS {
		return fmt.Errorf("timeout_ms must not exceed %d", MaxTimeoutMS)
	}
	if rp := c.RetryPolicy; rp != nil && (rp.MaxRetries < 0 || rp.BackoffMS < 0) {
		return fmt.Errorf("retry_policy values must not be negative")
	}
	return c.Provenance.Validate()
}
