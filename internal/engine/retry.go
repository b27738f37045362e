package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig controls retry behavior.
// InitialWait <= 0 retries immediately, which is what tests use.
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	Jitter      float64 // randomization factor in [0,1)
}

// DefaultRetryConfig is suitable for most HTTP calls.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:  3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Multiplier:  2.0,
}

// DefaultBlockRetryConfig is used when YouTube answers with a rate limit or bot check.
// Blocks clear slowly, so waits are much longer than for transient HTTP errors.
var DefaultBlockRetryConfig = RetryConfig{
	MaxRetries:  3,
	InitialWait: 5 * time.Second,
	MaxWait:     60 * time.Second,
	Multiplier:  2.0,
	Jitter:      0.5,
}

func (rc RetryConfig) backOff() backoff.BackOff {
	if rc.InitialWait <= 0 {
		return &backoff.ZeroBackOff{}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rc.InitialWait
	bo.MaxInterval = rc.MaxWait
	if bo.MaxInterval < rc.InitialWait {
		bo.MaxInterval = rc.InitialWait
	}
	bo.Multiplier = rc.Multiplier
	if bo.Multiplier < 1 {
		bo.Multiplier = 1
	}
	bo.RandomizationFactor = rc.Jitter
	return bo
}

// RetryIf retries fn while retryable(err) reports true, up to MaxRetries extra attempts.
// Non-retryable errors and context cancellation return immediately.
func RetryIf[T any](ctx context.Context, rc RetryConfig, retryable func(error) bool, fn func() (T, error)) (T, error) {
	maxRetries := rc.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	op := func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		result, err := fn()
		if err != nil && !retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(rc.backOff()),
		backoff.WithMaxTries(uint(maxRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("retrying", slog.Duration("wait", wait), slog.Any("error", err))
		}),
	)
}

// RetryDo retries fn on transient network and server errors.
func RetryDo[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	return RetryIf(ctx, rc, IsRetryable, fn)
}

// RetryHTTP executes an HTTP request function with retry logic.
// 5xx answers are retried; any other status is handed back to the caller with the body open.
func RetryHTTP(ctx context.Context, rc RetryConfig, fn func() (*http.Response, error)) (*http.Response, error) {
	return RetryDo(ctx, rc, func() (*http.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if isRetryableStatus(resp.StatusCode) {
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
}

// StatusError reports an unexpected HTTP status code.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable returns true for transient errors worth retrying.
func IsRetryable(err error) bool {
	var httpErr *StatusError
	if errors.As(err, &httpErr) {
		return isRetryableStatus(httpErr.StatusCode)
	}

	// Connection errors (dial failures, connection refused, etc.)
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	// net.Error includes OpError, so check after OpError
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// isRetryableStatus reports 5xx gateway/server failures.
// 429 is absent: callers treat it as a block signal with its own policy.
func isRetryableStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	}
	return false
}
