// Package resilience provides transient-error classification, bounded
// retries, and the first-token timeout used around provider streams.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/haasonsaas/hive/internal/provider"
)

var (
	// ErrTimeout indicates no token arrived within the first-token window.
	ErrTimeout = errors.New("timeout waiting for first token")

	// ErrCancelled indicates the operation was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// Defaults for the retry helpers.
const (
	// FirstTokenTimeout is how long a stream may stay silent before the
	// first token.
	FirstTokenTimeout = 30 * time.Second

	// RetryAttempts bounds RetryTransient (including the first try).
	RetryAttempts = 2

	// RetryBackoff is the fixed delay between attempts.
	RetryBackoff = 2 * time.Second
)

// IsTransient reports whether err is worth retrying: provider rate limits,
// server errors, timeouts, and network-level failures. Auth and other 4xx
// failures are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return false
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Reason.IsTransient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded")
}

// RetryTransient runs op, retrying transient failures with a fixed backoff.
// Permanent failures propagate immediately.
func RetryTransient[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return retry.DoWithData(
		op,
		retry.Context(ctx),
		retry.Attempts(RetryAttempts),
		retry.Delay(RetryBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
	)
}

// WithFirstTokenTimeout wraps a provider stream: tokens pass through
// unchanged, but if nothing arrives within timeout the underlying stream is
// cancelled and the wrapped stream fails with ErrTimeout.
//
// cancel must abort the underlying stream; it is invoked at most once.
func WithFirstTokenTimeout(in <-chan provider.StreamChunk, timeout time.Duration, cancel context.CancelFunc) <-chan provider.StreamChunk {
	if timeout <= 0 {
		timeout = FirstTokenTimeout
	}

	out := make(chan provider.StreamChunk)
	go func() {
		defer close(out)

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case chunk, ok := <-in:
			if !ok {
				return
			}
			out <- chunk
			if chunk.Err != nil {
				return
			}
		case <-timer.C:
			cancel()
			// Drain so the producer goroutine can exit.
			go func() {
				for range in {
				}
			}()
			out <- provider.StreamChunk{Err: ErrTimeout}
			return
		}

		for chunk := range in {
			out <- chunk
		}
	}()
	return out
}
