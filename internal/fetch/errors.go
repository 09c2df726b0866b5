package fetch

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for HTTP 404. Callers decide whether a missing
// document is acceptable; it is never retried.
var ErrNotFound = errors.New("not found")

// TransientError is a failure worth retrying: a connection error or one of
// the retryable statuses.
type TransientError struct {
	URL        string
	StatusCode int // 0 for connection-level failures
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient HTTP %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("transient error for %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError is a failure the fetcher gave up on: a non-retryable status,
// or a transient failure that outlived the retry budget.
type FatalError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FatalError) Error() string {
	switch {
	case e.Err != nil && e.Attempts > 1:
		return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsFatal reports whether err is (or wraps) a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
