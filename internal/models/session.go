package models

import (
	"time"
)

// Session is the in-memory authentication state of the client.
// Empty strings stand for absent values.
type Session struct {
	AccessToken       string
	RefreshToken      string
	AccessTokenExpiry time.Time // zero when the token is opaque
	User              *User
	ActiveTenantID    string
	Language          string

	// IsBootstrapping is true only while persisted state is being restored.
	IsBootstrapping bool
}

// IsAuthenticated reports whether both an access token and a user are present.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != "" && s.User != nil
}

// HasRefreshToken reports whether the session can mint new access tokens.
func (s Session) HasRefreshToken() bool {
	return s.RefreshToken != ""
}

// Clone returns a deep copy so callers can't mutate the manager's user record.
func (s Session) Clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// TokenPair is the payload returned by the login and refresh endpoints.
// Refresh is optional on refresh responses; an empty value keeps the existing token.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
	User    *User  `json:"user,omitempty"`
}

// Credentials are the email and password submitted to the login endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
