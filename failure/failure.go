// Package failure sorts errors from the session, provider and profile
// layers into the categories the UI shows messages for.
package failure

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-social-session/profile"
	"github.com/jrsteele09/go-social-session/provider"
	"github.com/jrsteele09/go-social-session/session"
)

type Category string

const (
	CategoryNetwork      Category = "network"
	CategoryPermission   Category = "permission"
	CategoryToken        Category = "token"
	CategoryCancelled    Category = "cancelled"
	CategoryAccessDenied Category = "access_denied"
	CategoryUnknown      Category = "unknown"
)

var messages = map[Category]string{
	CategoryNetwork:      "Network error. Check your connection and try again.",
	CategoryPermission:   "The app was not granted the permissions it needs.",
	CategoryToken:        "Your session has expired. Please log in again.",
	CategoryCancelled:    "Login was cancelled.",
	CategoryAccessDenied: "Access was denied.",
	CategoryUnknown:      "Something went wrong. Please try again.",
}

// Classify picks the category of err. The first matching rule wins, so a
// cancelled login that also carries a network cause stays cancelled.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var apiErr *profile.APIError
	hasAPIErr := errors.As(err, &apiErr)

	switch {
	case errors.Is(err, session.ErrCancelled), errors.Is(err, context.Canceled):
		return CategoryCancelled
	case errors.Is(err, provider.ErrAccessDenied):
		return CategoryAccessDenied
	case hasAPIErr && apiErr.StatusCode == http.StatusForbidden:
		return CategoryAccessDenied
	case errors.Is(err, provider.ErrPermissionDenied):
		return CategoryPermission
	case errors.Is(err, provider.ErrTokenInvalid),
		errors.Is(err, provider.ErrNoAccessToken),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrNotLoggedIn),
		errors.Is(err, profile.ErrNoToken):
		return CategoryToken
	case hasAPIErr && apiErr.StatusCode == http.StatusUnauthorized:
		return CategoryToken
	case errors.Is(err, provider.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return CategoryNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return CategoryNetwork
	}
	return CategoryUnknown
}

// Message returns the text to show the user for err. Backend errors that
// fall outside the known categories keep the backend's own message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	category := Classify(err)
	if category == CategoryUnknown {
		var apiErr *profile.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return messages[category]
}
