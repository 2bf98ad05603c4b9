// Package callerrors defines the closed error taxonomy of the integration call
// layer. Every failure path, whether it originates in argument validation, a
// provider backend, a transport timeout or a recovered panic, terminates in a
// single *Info value. No other error type crosses the dispatcher boundary.
package callerrors

import (
	"fmt"
	"strings"
	"time"
)

// Code is the normalized error code. The set is closed: backends may not
// invent codes, and a code outside the set is itself treated as an internal
// error by the dispatcher.
type Code string

const (
	// AuthRequired means no credential was presented or the credential expired.
	AuthRequired Code = "AUTH_REQUIRED"
	// AuthForbidden means a credential was presented but lacks scope.
	AuthForbidden Code = "AUTH_FORBIDDEN"
	// RateLimited means the provider reported rate limiting.
	RateLimited Code = "RATE_LIMITED"
	// ValidationFailed covers unknown method ids, invalid arguments and
	// provider payloads that violate the declared output schema.
	ValidationFailed Code = "VALIDATION_FAILED"
	// NotFound means the provider reported that the addressed resource does
	// not exist. It is never used for unknown method ids.
	NotFound Code = "NOT_FOUND"
	// ProviderUnavailable means the provider could not be reached or reported
	// a server-side failure.
	ProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	// Timeout means the call did not complete within its deadline.
	Timeout Code = "TIMEOUT"
	// InternalError covers everything else, including backend contract
	// violations and recovered panics.
	InternalError Code = "INTERNAL_ERROR"
)

// Codes lists every code of the taxonomy in declaration order.
var Codes = []Code{
	AuthRequired,
	AuthForbidden,
	RateLimited,
	ValidationFailed,
	NotFound,
	ProviderUnavailable,
	Timeout,
	InternalError,
}

// Valid reports whether c belongs to the taxonomy.
func (c Code) Valid() bool {
	switch c {
	case AuthRequired, AuthForbidden, RateLimited, ValidationFailed,
		NotFound, ProviderUnavailable, Timeout, InternalError:
		return true
	default:
		return false
	}
}

// DefaultRetriable reports the conventional retriable flag for c.
func (c Code) DefaultRetriable() bool {
	switch c {
	case RateLimited, ProviderUnavailable, Timeout:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the code.
func (c Code) String() string {
	return string(c)
}

// Info is the normalized error value carried by failed results. It implements
// error so backends can return it directly from Invoke.
type Info struct {
	// Code is the normalized taxonomy code.
	Code Code `json:"code"`
	// Message is a human-readable description sufficient to act on.
	Message string `json:"message"`
	// ProviderCode is the backend-native error code, passed through opaquely.
	ProviderCode string `json:"provider_code,omitempty"`
	// HTTPStatus is the provider HTTP status, 0 when not applicable.
	HTTPStatus int `json:"http_status"`
	// Retriable tells automated callers whether re-issuing may succeed.
	Retriable bool `json:"retriable"`
	// Issues lists the field-level problems of a VALIDATION_FAILED error.
	Issues []*FieldIssue `json:"issues,omitempty"`
	// Hint carries remediation guidance, for example the list of valid
	// operations when a router receives an unknown one.
	Hint string `json:"hint,omitempty"`
}

// FieldIssue is a single validation problem. Constraint values follow the goa
// error kinds: missing_field, invalid_field_type, invalid_enum_value,
// invalid_format, invalid_pattern, invalid_range, invalid_length, unknown_field.
type FieldIssue struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Message    string `json:"message,omitempty"`
}

// New returns an Info with the conventional retriable flag for code.
func New(code Code, message string) *Info {
	if message == "" {
		message = strings.ToLower(strings.ReplaceAll(string(code), "_", " "))
	}
	return &Info{Code: code, Message: message, Retriable: code.DefaultRetriable()}
}

// Newf formats according to a format specifier and returns an Info.
func Newf(code Code, format string, args ...any) *Info {
	return New(code, fmt.Sprintf(format, args...))
}

// Validation returns a VALIDATION_FAILED error listing issues.
func Validation(message string, issues []*FieldIssue) *Info {
	info := New(ValidationFailed, message)
	info.Issues = issues
	return info
}

// TimeoutAfter returns a retriable TIMEOUT error for a call that exceeded d.
func TimeoutAfter(d time.Duration) *Info {
	return Newf(Timeout, "call timed out after %v", d)
}

// Internal folds err into a non-retriable INTERNAL_ERROR. The Go type and
// message are preserved in the message; the error value itself is dropped.
func Internal(err error) *Info {
	if err == nil {
		return New(InternalError, "internal error")
	}
	return Newf(InternalError, "%T: %s", err, err.Error())
}

// Error implements the error interface.
func (e *Info) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.ProviderCode != "" {
		fmt.Fprintf(&b, " (provider_code=%s)", e.ProviderCode)
	}
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (http_status=%d)", e.HTTPStatus)
	}
	return b.String()
}

// Is reports whether target is an *Info with the same code, so callers can
// write errors.Is(err, callerrors.New(callerrors.Timeout, "")).
func (e *Info) Is(target error) bool {
	t, ok := target.(*Info)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithProvider returns a copy of e annotated with provider diagnostics.
func (e *Info) WithProvider(providerCode string, httpStatus int) *Info {
	out := *e
	out.ProviderCode = providerCode
	out.HTTPStatus = httpStatus
	return &out
}

// WithHint returns a copy of e carrying hint.
func (e *Info) WithHint(hint string) *Info {
	out := *e
	out.Hint = hint
	return &out
}

// Clone returns a deep copy of e.
func (e *Info) Clone() *Info {
	if e == nil {
		return nil
	}
	out := *e
	if len(e.Issues) > 0 {
		out.Issues = make([]*FieldIssue, 0, len(e.Issues))
		for _, is := range e.Issues {
			if is == nil {
				continue
			}
			cp := *is
			out.Issues = append(out.Issues, &cp)
		}
	}
	return &out
}
