package identity

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-social-session/internal/utils"
)

// FromProviderData maps the Graph style field set returned by a login
// provider ({id, name, email, picture:{data:{url}}}) onto a User.
func FromProviderData(data map[string]any, now time.Time) (*User, error) {
	id := stringField(data, "id")
	if id == "" {
		return nil, ErrMissingID
	}
	email := stringField(data, "email")
	u := &User{
		ID:            id,
		DisplayName:   stringField(data, "name"),
		Email:         email,
		EmailVerified: email != "",
		CreatedAt:     utils.Ptr(now.UTC()),
	}
	u.ProfileImageURL = utils.NonEmpty(pictureURL(data["picture"]))
	return u, nil
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// pictureURL accepts either a bare URL or the nested {data:{url}} shape.
func pictureURL(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case map[string]any:
		if data, ok := p["data"].(map[string]any); ok {
			if url, ok := data["url"].(string); ok {
				return url
			}
		}
		if url, ok := p["url"].(string); ok {
			return url
		}
	}
	return ""
}
