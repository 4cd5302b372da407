// Package provider defines the external login provider the session manager
// delegates the OAuth handshake to.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLoginInProgress  = errors.New("login already in progress")
	ErrNoAccessToken    = errors.New("no access token")
	ErrTokenInvalid     = errors.New("access token invalid or revoked")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAccessDenied     = errors.New("access denied")
	ErrNetwork          = errors.New("network failure")
)

// Status is the terminal outcome of a provider login.
type Status int

const (
	StatusSuccess Status = iota
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// LoginResult is what a provider reports for one login attempt. Token is
// set only for StatusSuccess; Err carries the cause of StatusFailed.
type LoginResult struct {
	Status  Status
	Token   *AccessToken
	Message string
	Err     error
}

// AccessToken is a bearer token as the provider reports it.
type AccessToken struct {
	Token               string
	UserID              string
	Expires             time.Time
	Permissions         []string
	DeclinedPermissions []string
}

// IsExpired reports whether the token is past its expiry at now. A zero
// expiry never expires.
func (t *AccessToken) IsExpired(now time.Time) bool {
	if t == nil {
		return true
	}
	if t.Expires.IsZero() {
		return false
	}
	return now.After(t.Expires)
}

// Provider performs the OAuth flow and profile lookups against a social
// login service.
type Provider interface {
	// Login runs the interactive flow. The only error it returns is
	// ErrLoginInProgress; every other failure is a StatusFailed result.
	Login(ctx context.Context, permissions []string) (LoginResult, error)

	// UserData fetches the requested profile fields for the current token.
	UserData(ctx context.Context, fields []string) (map[string]any, error)

	// CurrentAccessToken returns the token the provider holds, or nil.
	CurrentAccessToken(ctx context.Context) (*AccessToken, error)

	// Validate checks token live against the provider and adopts it as the
	// current token on success.
	Validate(ctx context.Context, token string) (*AccessToken, error)

	// RefreshAccessToken obtains a fresh token for the current session.
	RefreshAccessToken(ctx context.Context) (*AccessToken, error)

	// LogOut revokes the current token and forgets it.
	LogOut(ctx context.Context) error
}
