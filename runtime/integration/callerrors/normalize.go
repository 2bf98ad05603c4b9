package callerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// HTTPStatusError is returned by transport code for non-2xx provider
// responses before they are normalized.
type HTTPStatusError struct {
	StatusCode   int
	ProviderCode string
	Message      string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Normalize maps an arbitrary error into exactly one *Info. An *Info found in
// the chain is returned as is.
func Normalize(err error) *Info {
	if err == nil {
		return nil
	}
	var info *Info
	if errors.As(err, &info) {
		return info
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(Timeout, "deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return New(InternalError, "call canceled")
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return FromHTTPStatus(statusErr.StatusCode, statusErr.ProviderCode, statusErr.Message)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return Newf(Timeout, "dns lookup %s timed out", dnsErr.Name)
		}
		return Newf(ProviderUnavailable, "dns lookup %s failed: %s", dnsErr.Name, dnsErr.Err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Newf(Timeout, "network timeout: %s", netErr.Error())
		}
		return Newf(ProviderUnavailable, "network error: %s", netErr.Error())
	}
	return Internal(err)
}

// FromHTTPStatus classifies a provider HTTP status. providerCode and message
// are preserved as diagnostics; the normalized code is derived from status
// only.
func FromHTTPStatus(status int, providerCode, message string) *Info {
	var code Code
	switch {
	case status == http.StatusUnauthorized:
		code = AuthRequired
	case status == http.StatusForbidden:
		code = AuthForbidden
	case status == http.StatusNotFound || status == http.StatusGone:
		code = NotFound
	case status == http.StatusTooManyRequests:
		code = RateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = Timeout
	case status == http.StatusBadRequest || status == http.StatusConflict ||
		status == http.StatusUnprocessableEntity || status == http.StatusRequestEntityTooLarge:
		code = ValidationFailed
	case status >= http.StatusInternalServerError:
		code = ProviderUnavailable
	default:
		code = InternalError
	}
	if message == "" {
		message = fmt.Sprintf("provider returned HTTP %d", status)
	}
	info := New(code, message)
	info.ProviderCode = providerCode
	info.HTTPStatus = status
	return info
}
