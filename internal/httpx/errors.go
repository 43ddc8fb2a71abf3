package httpx

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
)

// StatusError is returned for non-2xx gateway/CRM responses. Body carries an
// excerpt of the response for log context.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// StatusOf extracts the HTTP status code from err. Non-HTTP failures
// (network errors, decode errors) map to 500 so callers can latch a generic
// server-error code.
func StatusOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return nethttp.StatusInternalServerError
}

// IsCancellation reports whether err is a user-initiated cancellation signal
// rather than a genuine failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
