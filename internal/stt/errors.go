package stt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type FailureKind string

const (
	KindTimeout            FailureKind = "timeout"
	KindNetwork            FailureKind = "network"
	KindVendorError        FailureKind = "vendor_error"
	KindRateLimited        FailureKind = "rate_limited"
	KindBadRequest         FailureKind = "bad_request"
	KindInvalidCredentials FailureKind = "invalid_credentials"
	KindQuotaExhausted     FailureKind = "quota_exhausted"
	KindMalformedResponse  FailureKind = "malformed_response"
	KindNotConfigured      FailureKind = "not_configured"
)

// ProviderError is the typed failure every adapter returns. Retryable drives
// the dispatcher: retryable failures advance the fallback chain, terminal
// ones stop it.
type ProviderError struct {
	Provider  string
	Kind      FailureKind
	Message   string
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
}

func newProviderError(provider string, kind FailureKind, retryable bool, format string, args ...any) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryable,
	}
}

// classifyTransportError maps errors from the HTTP round trip itself.
// Timeouts and connection failures are retryable: a sibling vendor may well
// be reachable.
func classifyTransportError(provider string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return newProviderError(provider, KindTimeout, true, "request timed out: %v", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newProviderError(provider, KindTimeout, true, "request timed out: %v", err)
	}
	return newProviderError(provider, KindNetwork, true, "request failed: %v", err)
}

// classifyStatusCode maps vendor HTTP statuses. 5xx and 429 are retryable,
// everything else in 4xx is a terminal rejection of this request.
func classifyStatusCode(provider string, status int, body string) *ProviderError {
	switch {
	case status == http.StatusTooManyRequests:
		return newProviderError(provider, KindRateLimited, true, "rate limited: %s", body)
	case status >= 500:
		return newProviderError(provider, KindVendorError, true, "vendor error %d: %s", status, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newProviderError(provider, KindInvalidCredentials, false, "credentials rejected (%d)", status)
	case status == http.StatusPaymentRequired:
		return newProviderError(provider, KindQuotaExhausted, false, "quota exhausted (%d)", status)
	default:
		return newProviderError(provider, KindBadRequest, false, "vendor rejected request %d: %s", status, body)
	}
}
