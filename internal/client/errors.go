package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired is returned when the backend rejects the current credentials.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidResponse is returned when a 2xx response body can't be decoded.
	ErrInvalidResponse = errors.New("invalid response body")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

// Temporary reports whether retrying the request could succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// isSessionExpiredStatus matches the statuses the backend uses for rejected credentials.
// 411 is treated like 401 for compatibility with existing backend deployments.
func isSessionExpiredStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusLengthRequired
}
