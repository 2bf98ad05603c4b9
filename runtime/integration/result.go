package integration

import "github.com/launchlab/integrations/runtime/integration/callerrors"

type (
	// Result is the uniform outcome of one Call. Exactly one of Data and Error
	// is set, as determined by OK.
	Result struct {
		OK       bool   `json:"ok"`
		TraceID  string `json:"trace_id"`
		MethodID string `json:"method_id"`
		// Data is the normalized payload; it validates against the method's
		// output schema.
		Data map[string]any `json:"data,omitempty"`
		// Raw is the unredacted backend payload, for audit and debugging only.
		Raw   any              `json:"raw,omitempty"`
		Meta  *Meta            `json:"meta,omitempty"`
		Error *callerrors.Info `json:"error,omitempty"`
	}

	// Meta carries call metadata reported by the backend or attached by the
	// dispatcher.
	Meta struct {
		ProviderRequestID  string      `json:"provider_request_id,omitempty"`
		LatencyMS          int64       `json:"latency_ms"`
		NextCursor         string      `json:"next_cursor,omitempty"`
		RateLimitRemaining *int        `json:"rate_limit_remaining,omitempty"`
		CostUnits          float64     `json:"cost_units,omitempty"`
		Provenance         *Provenance `json:"provenance,omitempty"`
		// Warnings holds advisory notices such as method deprecation.
		Warnings []string `json:"warnings,omitempty"`
	}
)

// Failed reports whether r is a failure carrying code.
func (r *Result) Failed(code callerrors.Code) bool {
	return r != nil && !r.OK && r.Error != nil && r.Error.Code == code
}

// Retriable reports whether r is a failure that may succeed when re-issued.
func (r *Result) Retriable() bool {
	return r != nil && !r.OK && r.Error != nil && r.Error.Retriable
}
