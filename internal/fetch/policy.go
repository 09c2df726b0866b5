package fetch

import (
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy describes how the client retries transient failures.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	Initial     time.Duration // first backoff delay
	Cap         time.Duration // upper bound on a single delay
	Retryable   func(status int) bool
}

// DefaultRetryPolicy retries 429 and 5xx gateway errors up to 12 times,
// starting at one second and doubling up to 90 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 12,
		Initial:     time.Second,
		Cap:         90 * time.Second,
		Retryable:   RetryableStatus,
	}
}

// RetryableStatus is the default retryable-status predicate.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Initial <= 0 {
		p.Initial = def.Initial
	}
	if p.Cap <= 0 {
		p.Cap = def.Cap
	}
	if p.Cap < p.Initial {
		p.Cap = p.Initial
	}
	if p.Retryable == nil {
		p.Retryable = def.Retryable
	}
	return p
}

// backoff builds a fresh go-retry backoff; backoffs are stateful so one
// is needed per request.
func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.Initial)
	b = retry.WithCappedDuration(p.Cap, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}
