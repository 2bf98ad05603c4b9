package method

import (
	"errors"
	"fmt"
	"sort"
)

// ErrEmptyRegistry is returned by NewRegistry when no spec is supplied.
var ErrEmptyRegistry = errors.New("method: registry requires at least one spec")

// SpecError reports why a spec was rejected at registration.
type SpecError struct {
	ID     string
	Reason string
}

// Error implements the error interface.
func (e *SpecError) Error() string {
	return fmt.Sprintf("method: spec %q: %s", e.ID, e.Reason)
}

// Registry is the immutable catalog of method specs for one integration,
// keyed by ID. It is safe for concurrent use since nothing mutates it after
// construction.
type Registry struct {
	byID    map[Ident]*Spec
	ordered []*Spec
}

// NewRegistry validates specs and builds a registry. Every problem is
// reported; the returned error joins one *SpecError per violation. An integration
// cannot exist with a broken catalog so callers should fail fast on error.
func NewRegistry(specs ...Spec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyRegistry
	}
	var errs []error
	reject := func(id Ident, format string, args ...any) {
		errs = append(errs, &SpecError{ID: string(id), Reason: fmt.Sprintf(format, args...)})
	}
	r := &Registry{byID: make(map[Ident]*Spec, len(specs))}
	for _, in := range specs {
		s := in.clone()
		if _, err := ParseIdent(string(s.ID)); err != nil {
			reject(s.ID, "%v", err)
			continue
		}
		if s.Provider == "" {
			s.Provider = s.ID.Provider()
		}
		if s.Provider != s.ID.Provider() {
			reject(s.ID, "provider %q does not match id provider %q", s.Provider, s.ID.Provider())
		}
		if !s.Idempotency.Valid() {
			reject(s.ID, "unknown idempotency class %q", s.Idempotency)
		}
		if s.Input == nil {
			reject(s.ID, "missing input schema")
		}
		if s.Output == nil {
			reject(s.ID, "missing output schema")
		}
		switch {
		case s.Deprecated && s.ReplacementID == "":
			reject(s.ID, "deprecated without replacement id")
		case s.ReplacementID != "" && !s.ReplacementID.Valid():
			reject(s.ID, "malformed replacement id %q", s.ReplacementID)
		case s.ReplacementID == s.ID:
			reject(s.ID, "replacement id refers to itself")
		}
		if _, dup := r.byID[s.ID]; dup {
			reject(s.ID, "duplicate id")
			continue
		}
		r.byID[s.ID] = &s
		r.ordered = append(r.ordered, &s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].ID < r.ordered[j].ID })
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(specs ...Spec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the spec registered under id. Matching is exact: there is
// no aliasing and no default. The same pointer is returned on every lookup;
// callers must treat it as read-only.
func (r *Registry) Resolve(id string) (*Spec, bool) {
	s, ok := r.byID[Ident(id)]
	return s, ok
}

// Len returns the number of registered specs.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Specs returns every spec sorted by ID.
func (r *Registry) Specs() []*Spec {
	return append([]*Spec(nil), r.ordered...)
}

// IDs returns every registered ID in sorted order.
func (r *Registry) IDs() []Ident {
	ids := make([]Ident, len(r.ordered))
	for i, s := range r.ordered {
		ids[i] = s.ID
	}
	return ids
}

// Providers returns the distinct provider names in sorted order.
func (r *Registry) Providers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range r.ordered {
		if _, ok := seen[s.Provider]; ok {
			continue
		}
		seen[s.Provider] = struct{}{}
		out = append(out, s.Provider)
	}
	sort.Strings(out)
	return out
}

// Versions returns the specs of family ("provider.resource.action") ordered
// by ascending version.
func (r *Registry) Versions(family string) []*Spec {
	var out []*Spec
	for _, s := range r.ordered {
		if s.ID.Family() == family {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Version() < out[j].ID.Version() })
	return out
}

// Filter returns the specs tagged with capability, sorted by ID.
func (r *Registry) Filter(capability string) []*Spec {
	var out []*Spec
	for _, s := range r.ordered {
		if s.HasCapability(capability) {
			out = append(out, s)
		}
	}
	return out
}
