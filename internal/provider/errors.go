package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// FailureReason categorizes why a provider request failed. The
// classification drives retry decisions: only rate limits, timeouts, and
// server errors are worth retrying.
type FailureReason string

const (
	// ReasonAuth indicates authentication failure (HTTP 401, 403).
	ReasonAuth FailureReason = "auth"

	// ReasonRateLimit indicates rate limiting (HTTP 429).
	ReasonRateLimit FailureReason = "rate_limit"

	// ReasonTimeout indicates a request or first-token timeout.
	ReasonTimeout FailureReason = "timeout"

	// ReasonServer indicates server-side issues (HTTP 5xx).
	ReasonServer FailureReason = "server_error"

	// ReasonRequest indicates client-side issues (other 4xx).
	ReasonRequest FailureReason = "invalid_request"

	// ReasonConnection indicates a network-level failure.
	ReasonConnection FailureReason = "connection"

	// ReasonUnknown indicates an unclassified error.
	ReasonUnknown FailureReason = "unknown"
)

// IsTransient reports whether retrying may succeed.
func (r FailureReason) IsTransient() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServer, ReasonConnection:
		return true
	default:
		return false
	}
}

// Error is a structured provider failure.
type Error struct {
	Reason   FailureReason
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Model != "" {
		fmt.Fprintf(&b, " (%s)", e.Model)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	if e.Status != 0 {
		fmt.Fprintf(&b, " [%d]", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WrapError classifies err into a provider Error. Already-classified errors
// pass through unchanged.
func WrapError(providerName, model string, status int, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{
		Reason:   classifyError(status, err),
		Provider: providerName,
		Model:    model,
		Status:   status,
		Message:  err.Error(),
		Cause:    err,
	}
}

func classifyError(status int, err error) FailureReason {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status >= 500:
		return ReasonServer
	case status >= 400:
		return ReasonRequest
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonConnection
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "eof"):
		return ReasonConnection
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ReasonTimeout
	default:
		return ReasonUnknown
	}
}
