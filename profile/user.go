package profile

import (
	"time"

	"github.com/jrsteele09/go-social-session/identity"
)

// User is a profile as the backend returns it.
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Username      string     `json:"username,omitempty"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"emailVerified"`
	Bio           *string    `json:"bio,omitempty"`
	ProfileImage  *string    `json:"profileImage,omitempty"`
	AuthProvider  string     `json:"authProvider,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Identity maps the backend profile onto the session identity shape.
func (u *User) Identity() *identity.User {
	if u == nil {
		return nil
	}
	id := &identity.User{
		ID:              u.ID,
		DisplayName:     u.Name,
		Email:           u.Email,
		EmailVerified:   u.EmailVerified,
		ProfileImageURL: u.ProfileImage,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
	return id.Clone()
}
