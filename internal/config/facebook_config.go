package config

import "github.com/jrsteele09/go-social-session/internal/utils"

type FacebookConfig interface {
	GetFacebookAppID() string
	GetFacebookAppSecret() string
	GetFacebookRedirectURL() string
	GetFacebookGraphURL() string
	GetFacebookPermissions() []string
	GetFacebookUserFields() []string
	GetFacebookOpenID() bool
}

type Facebook struct{}

var _ FacebookConfig = Facebook{}

func (Facebook) GetFacebookAppID() string {
	return GetEnv("FB_APP_ID", "")
}

func (Facebook) GetFacebookAppSecret() string {
	return GetEnv("FB_APP_SECRET", "")
}

// GetFacebookRedirectURL must match a Valid OAuth Redirect URI registered on the app.
func (Facebook) GetFacebookRedirectURL() string {
	return GetEnv("FB_REDIRECT_URL", "http://localhost:8765/callback")
}

func (Facebook) GetFacebookGraphURL() string {
	return GetEnv("FB_GRAPH_URL", "https://graph.facebook.com/v19.0")
}

func (Facebook) GetFacebookPermissions() []string {
	return utils.SplitList(GetEnv("FB_PERMISSIONS", "email,public_profile"))
}

func (Facebook) GetFacebookUserFields() []string {
	return utils.SplitList(GetEnv("FB_USER_FIELDS", "id,name,email,picture.width(200).height(200)"))
}

func (Facebook) GetFacebookOpenID() bool {
	return GetEnvBool("FB_OPENID", false)
}
