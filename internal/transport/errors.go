package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"grantify-client/internal/utils"
)

// StatusError is returned for non-2xx responses once retries are exhausted
// or when the status is not retryable
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if msg := utils.ExtractErrorMessage(e.Body); msg != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Message returns the server supplied message, or the status text
func (e *StatusError) Message() string {
	if msg := utils.ExtractErrorMessage(e.Body); msg != "" {
		return msg
	}
	return http.StatusText(e.StatusCode)
}

// IsRetryable reports whether a response status is transient
func IsRetryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// IsCancelled reports whether err comes from cooperative cancellation.
// Such errors must be discarded, never shown to the user.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsStatus reports whether err is a StatusError with the given status code
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == status
}
