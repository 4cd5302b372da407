package facebook

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-social-session/provider"
)

// ErrAuthorizationCancelled is returned by an Authorizer when the user
// backs out of the consent dialog.
var ErrAuthorizationCancelled = errors.New("authorization cancelled by user")

// Authorizer shows the consent dialog at authURL and blocks until the
// redirect carrying state comes back, returning its authorization code.
type Authorizer interface {
	Authorize(ctx context.Context, authURL, state string) (code string, err error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, authURL, state string) (string, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, authURL, state string) (string, error) {
	return f(ctx, authURL, state)
}

// AuthorizationError is an error redirect from the dialog
// (?error=access_denied&error_reason=user_denied&error_description=...).
type AuthorizationError struct {
	Code        string
	Reason      string
	Description string
}

func (e *AuthorizationError) Error() string {
	msg := fmt.Sprintf("authorization failed: %s", e.Code)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// Unwrap maps the dialog error onto cancellation or access denial.
func (e *AuthorizationError) Unwrap() error {
	if e.Code != "access_denied" {
		return nil
	}
	if e.Reason == "user_denied" {
		return ErrAuthorizationCancelled
	}
	return provider.ErrAccessDenied
}
