package session

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfeidau/backoffice/internal/client"
)

// Kind classifies authentication failures.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindMalformedResponse  Kind = "malformed_response"
	KindRefreshFailed      Kind = "refresh_failed"
	KindNetwork            Kind = "network"
	KindUnavailable        Kind = "unavailable"
	KindNotAuthenticated   Kind = "not_authenticated"
)

// AuthError is returned by login, refresh and tenant selection.
type AuthError struct {
	Kind Kind
	Err  error
}

// Sentinel errors for errors.Is matching by kind.
var (
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials}
	ErrMalformedResponse  = &AuthError{Kind: KindMalformedResponse}
	ErrRefreshFailed      = &AuthError{Kind: KindRefreshFailed}
	ErrNetwork            = &AuthError{Kind: KindNetwork}
	ErrUnavailable        = &AuthError{Kind: KindUnavailable}
	ErrNotAuthenticated   = &AuthError{Kind: KindNotAuthenticated}

	// ErrNoRefreshToken is wrapped by refresh failures when no refresh token is held.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrSessionChanged is wrapped by refresh failures whose session was replaced
	// or logged out while the refresh was in flight.
	ErrSessionChanged = errors.New("session changed during refresh")
)

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "authentication error: " + string(e.Kind)
	}
	return fmt.Sprintf("authentication error: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// classifyLoginError maps a login transport or API failure to an AuthError.
func classifyLoginError(err error) *AuthError {
	code := client.StatusCode(err)
	switch {
	case errors.Is(err, client.ErrInvalidResponse):
		return &AuthError{Kind: KindMalformedResponse, Err: err}
	case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
		return &AuthError{Kind: KindInvalidCredentials, Err: err}
	case code >= http.StatusInternalServerError:
		return &AuthError{Kind: KindUnavailable, Err: err}
	default:
		return &AuthError{Kind: KindNetwork, Err: err}
	}
}
