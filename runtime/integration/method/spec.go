// Package method defines the metadata describing callable provider operations
// and the immutable registry that catalogs them for one integration.
package method

import "github.com/launchlab/integrations/runtime/integration/schema"

// Spec describes one callable provider operation. Specs are created once at
// integration registration time and never mutated afterwards: a breaking
// change gets a new ID version instead.
type Spec struct {
	// ID is the globally unique versioned identifier.
	ID Ident
	// Provider names the backend provider. It must match ID.Provider().
	Provider string
	// Description is a short human-readable summary used in catalogs.
	Description string
	// Input validates call arguments before the backend is invoked.
	Input *schema.Schema
	// Output validates the normalized payload of successful responses.
	Output *schema.Schema
	// Capabilities tags the method for discovery (e.g. "read", "billing").
	Capabilities []string
	// AuthScopes lists the credential scopes the method requires.
	AuthScopes []string
	// RateLimitHint is a free-form description of provider rate limits.
	RateLimitHint string
	// Idempotency declares whether repeating the call is safe.
	Idempotency Idempotency
	// CostHint is a free-form description of the per-call cost.
	CostHint string
	// Deprecated marks the method as superseded. It stays resolvable.
	Deprecated bool
	// ReplacementID names the method consumers should migrate to. Required
	// when Deprecated is set.
	ReplacementID Ident
}

// HasCapability reports whether the spec is tagged with capability.
func (s *Spec) HasCapability(capability string) bool {
	for _, c := range s.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// clone returns a copy whose slices are not shared with s.
func (s Spec) clone() Spec {
	s.Capabilities = append([]string(nil), s.Capabilities...)
	s.AuthScopes = append([]string(nil), s.AuthScopes...)
	return s
}
