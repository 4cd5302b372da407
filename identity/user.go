// Package identity holds the user record shared by the session manager and its stores.
package identity

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jrsteele09/go-social-session/internal/utils"
)

var (
	ErrEmptyPayload = errors.New("identity: empty payload")
	ErrMissingID    = errors.New("identity: missing id")
)

// User is the authenticated person as reported by the login provider.
// Optional fields are pointers so that an absent value survives a round
// trip through storage as absent.
type User struct {
	ID              string     `json:"id"`                        // Provider scoped unique id
	DisplayName     string     `json:"name"`                      // Display name
	Email           string     `json:"email"`                     // Email address, may be empty when not granted
	EmailVerified   bool       `json:"emailVerified"`             // The provider vouches for Email
	ProfileImageURL *string    `json:"profileImageUrl,omitempty"` // Avatar URL
	CreatedAt       *time.Time `json:"createdAt,omitempty"`       // When this identity was first seen
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`       // Last profile change
}

// Clone returns a deep copy so callers cannot mutate session state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.ProfileImageURL != nil {
		c.ProfileImageURL = utils.Ptr(*u.ProfileImageURL)
	}
	if u.CreatedAt != nil {
		c.CreatedAt = utils.Ptr(*u.CreatedAt)
	}
	if u.UpdatedAt != nil {
		c.UpdatedAt = utils.Ptr(*u.UpdatedAt)
	}
	return &c
}

// Encode serialises u for the credential store.
func Encode(u *User) (string, error) {
	if u == nil {
		return "", ErrEmptyPayload
	}
	if strings.TrimSpace(u.ID) == "" {
		return "", ErrMissingID
	}
	b, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a payload written by Encode.
func Decode(payload string) (*User, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, ErrEmptyPayload
	}
	var u User
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		return nil, err
	}
	if strings.TrimSpace(u.ID) == "" {
		return nil, ErrMissingID
	}
	return &u, nil
}
