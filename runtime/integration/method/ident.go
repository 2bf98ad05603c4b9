package method

import (
	"fmt"
	"strconv"
	"strings"
)

// Ident is the strong type for versioned method identifiers of the form
// "provider.resource.action.vN", e.g. "stripe.invoices.list.v1". Use this type
// in maps and APIs to avoid mixing identifiers with free-form strings.
type Ident string

// ParseIdent validates s and returns it as an Ident. Segments are lowercase
// ASCII letters, digits, '_' or '-'; the version is 'v' followed by a positive
// integer without leading zeros.
func ParseIdent(s string) (Ident, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return "", fmt.Errorf("method: invalid id %q: want provider.resource.action.vN", s)
	}
	for i, p := range parts[:3] {
		if err := checkSegment(p); err != nil {
			return "", fmt.Errorf("method: invalid id %q: %s segment: %w", s, segmentNames[i], err)
		}
	}
	if _, err := parseVersion(parts[3]); err != nil {
		return "", fmt.Errorf("method: invalid id %q: %w", s, err)
	}
	return Ident(s), nil
}

// MustParseIdent is like ParseIdent but panics on error.
func MustParseIdent(s string) Ident {
	id, err := ParseIdent(s)
	if err != nil {
		panic(err)
	}
	return id
}

var segmentNames = [...]string{"provider", "resource", "action"}

// String returns the string representation of the identifier.
func (id Ident) String() string {
	return string(id)
}

// Provider returns the provider segment.
func (id Ident) Provider() string { return id.segment(0) }

// Resource returns the resource segment.
func (id Ident) Resource() string { return id.segment(1) }

// Action returns the action segment.
func (id Ident) Action() string { return id.segment(2) }

// Version returns the numeric version, 0 when the identifier is malformed.
func (id Ident) Version() int {
	v, err := parseVersion(id.segment(3))
	if err != nil {
		return 0
	}
	return v
}

// Family returns the "provider.resource.action" prefix shared by every
// version of a method.
func (id Ident) Family() string {
	i := strings.LastIndexByte(string(id), '.')
	if i < 0 {
		return ""
	}
	return string(id[:i])
}

// Valid reports whether id is well formed.
func (id Ident) Valid() bool {
	_, err := ParseIdent(string(id))
	return err == nil
}

func (id Ident) segment(i int) string {
	parts := strings.Split(string(id), ".")
	if len(parts) != 4 {
		return ""
	}
	return parts[i]
}

func checkSegment(p string) error {
	if p == "" {
		return fmt.Errorf("empty")
	}
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("invalid character %q", r)
		}
	}
	return nil
}

func parseVersion(v string) (int, error) {
	if len(v) < 2 || v[0] != 'v' {
		return 0, fmt.Errorf("version %q must be v<N>", v)
	}
	digits := v[1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, fmt.Errorf("version %q must be v followed by decimal digits", v)
		}
	}
	if digits[0] == '0' {
		return 0, fmt.Errorf("version %q must be a positive integer without leading zeros", v)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("version %q must be a positive integer", v)
	}
	return n, nil
}
