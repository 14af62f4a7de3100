package fetch

import (
	"context"
	"errors"
	"fmt"
)

// NetworkError covers transport failures including timeouts. Retryable.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

type HTTPStatusError struct {
	URL        string
	StatusCode int
	// Attempt is the 1-based attempt that got this status.
	Attempt int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// Retryable is true for 5xx and 429. Other 4xx responses are final.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

type RedirectLoopError struct {
	URL  string
	Hops []string
}

func (e *RedirectLoopError) Error() string {
	return fmt.Sprintf("redirect loop fetching %s after %d hops", e.URL, len(e.Hops))
}

type RetryExhaustedError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up on %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Kind returns a short tag for err suitable for the error log context field.
func Kind(err error) string {
	var (
		redirect *RedirectLoopError
		status   *HTTPStatusError
		network  *NetworkError
		retry    *RetryExhaustedError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &redirect):
		return "redirect_loop"
	case errors.As(err, &retry) && errors.As(err, &status):
		return "retry_exhausted_status"
	case errors.As(err, &retry):
		return "retry_exhausted_network"
	case errors.As(err, &status):
		return "http_status"
	case errors.As(err, &network):
		return "network"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

// Attempts returns how many requests were made before err was returned. A
// canceled fetch reports 0.
func Attempts(err error) int {
	var (
		retry  *RetryExhaustedError
		status *HTTPStatusError
	)

	switch {
	case err == nil:
		return 0
	case errors.As(err, &retry):
		return retry.Attempts
	case errors.As(err, &status) && status.Attempt > 0:
		return status.Attempt
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 0
	default:
		return 1
	}
}
