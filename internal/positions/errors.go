// internal/positions/errors.go
package positions

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from the positions API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nansen http %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt:
// server errors and rate limiting are, other client errors are not.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// TransportError wraps timeouts and connection failures.
type TransportError struct {
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("timeout: %v", e.Err)
	}
	return fmt.Sprintf("request error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable classifies an attempt error. Anything that is neither a
// retryable API status nor a transport failure (bad JSON, request build
// errors) is permanent.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
