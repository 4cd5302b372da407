package session

import (
	"time"

	"github.com/jrsteele09/go-social-session/identity"
)

// State is where the manager is in the login lifecycle.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticating
	StateLoggedIn
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAuthenticating:
		return "authenticating"
	case StateLoggedIn:
		return "logged_in"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Session is the in-memory record of the logged-in user. User is set only
// while AccessToken is held and unexpired.
type Session struct {
	AccessToken string         // Bearer token for the provider
	Expiry      time.Time      // Zero when the provider reports no expiry
	User        *identity.User // Identity fetched at login or restored from storage
}

func (s *Session) expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.Expiry.IsZero() && now.After(s.Expiry)
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User = s.User.Clone()
	return &c
}
