package facebook_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-social-session/provider"
	"github.com/jrsteele09/go-social-session/provider/facebook"
)

const (
	testAppID     = "1234567890"
	testAppSecret = "app-secret"
	testRedirect  = "http://127.0.0.1:8085/callback"
	testCode      = "auth-code-1"
	testToken     = "EAAB-user-token"
	testUserID    = "10001"
)

// graphFake is a stand-in for graph.facebook.com and the OAuth token endpoint.
type graphFake struct {
	t  *testing.T
	mu sync.Mutex

	server      *httptest.Server
	idToken     string
	tokenValid  bool
	meStatus    int
	meBody      string
	revokeCalls int
	revokeFail  bool
	lastForm    url.Values
}

func newGraphFake(t *testing.T) *graphFake {
	g := &graphFake{t: t, tokenValid: true, meStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", g.token)
	mux.HandleFunc("/me", g.me)
	mux.HandleFunc("/me/permissions", g.permissions)
	mux.HandleFunc("/debug_token", g.debugToken)
	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func (g *graphFake) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(g.t, json.NewEncoder(w).Encode(v))
}

func (g *graphFake) token(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Query().Get("grant_type") == "fb_exchange_token" {
		if r.URL.Query().Get("fb_exchange_token") != testToken {
			g.writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "bad token", "code": 190}})
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]any{"access_token": "EAAB-long-lived", "token_type": "bearer", "expires_in": 5184000})
		return
	}
	require.NoError(g.t, r.ParseForm())
	g.mu.Lock()
	g.lastForm = r.PostForm
	idToken := g.idToken
	g.mu.Unlock()
	if r.PostForm.Get("code") != testCode {
		g.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		return
	}
	resp := map[string]any{"access_token": testToken, "token_type": "bearer", "expires_in": 3600}
	if idToken != "" {
		resp["id_token"] = idToken
	}
	g.writeJSON(w, http.StatusOK, resp)
}

func (g *graphFake) failMe(status int, body string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.meStatus = status
	g.meBody = body
}

func (g *graphFake) revokes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.revokeCalls
}

func (g *graphFake) me(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	status, body := g.meStatus, g.meBody
	g.mu.Unlock()
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
		return
	}
	require.Equal(g.t, testToken, r.URL.Query().Get("access_token"))
	require.NotEmpty(g.t, r.URL.Query().Get("appsecret_proof"))
	g.writeJSON(w, http.StatusOK, map[string]any{
		"id":     testUserID,
		"name":   "Ada Lovelace",
		"email":  "ada@example.com",
		"fields": r.URL.Query().Get("fields"),
	})
}

func (g *graphFake) permissions(w http.ResponseWriter, r *http.Request) {
	require.Equal(g.t, http.MethodDelete, r.Method)
	g.mu.Lock()
	g.revokeCalls++
	fail := g.revokeFail
	g.mu.Unlock()
	if fail {
		g.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]any{"message": "boom", "code": 1}})
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (g *graphFake) debugToken(w http.ResponseWriter, r *http.Request) {
	require.Equal(g.t, testAppID+"|"+testAppSecret, r.URL.Query().Get("access_token"))
	valid := g.tokenValid && r.URL.Query().Get("input_token") == testToken
	g.writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"app_id":     testAppID,
		"type":       "USER",
		"is_valid":   valid,
		"expires_at": 1900000000,
		"scopes":     []any{"public_profile", "email"},
		"user_id":    testUserID,
	}})
}

func (g *graphFake) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   g.server.URL + "/dialog/oauth",
		TokenURL:  g.server.URL + "/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// consentingAuthorizer approves every dialog and records the query it saw.
func consentingAuthorizer(t *testing.T, seen *url.Values) facebook.Authorizer {
	return facebook.AuthorizerFunc(func(_ context.Context, authURL, state string) (string, error) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		require.Equal(t, state, u.Query().Get("state"))
		if seen != nil {
			*seen = u.Query()
		}
		return testCode, nil
	})
}

func newProvider(t *testing.T, g *graphFake, authorizer facebook.Authorizer, mutate ...func(*facebook.Config)) *facebook.Provider {
	cfg := facebook.Config{
		AppID:       testAppID,
		AppSecret:   testAppSecret,
		RedirectURL: testRedirect,
		GraphURL:    g.server.URL,
		Endpoint:    g.endpoint(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := facebook.New(cfg, authorizer, facebook.WithHTTPClient(g.server.Client()))
	require.NoError(t, err)
	return p
}

func TestNew_RequiresAppCredentials(t *testing.T) {
	auth := facebook.AuthorizerFunc(func(context.Context, string, string) (string, error) { return "", nil })

	_, err := facebook.New(facebook.Config{AppSecret: "s"}, auth)
	require.Error(t, err)
	_, err = facebook.New(facebook.Config{AppID: "a"}, auth)
	require.Error(t, err)
	_, err = facebook.New(facebook.Config{AppID: "a", AppSecret: "s"}, nil)
	require.Error(t, err)
}

func TestLogin_Success(t *testing.T) {
	g := newGraphFake(t)
	var seen url.Values
	p := newProvider(t, g, consentingAuthorizer(t, &seen))

	res, err := p.Login(context.Background(), []string{"public_profile", "email"})
	require.NoError(t, err)
	require.Equal(t, provider.StatusSuccess, res.Status)
	require.NotNil(t, res.Token)
	require.Equal(t, testToken, res.Token.Token)
	require.Equal(t, []string{"public_profile", "email"}, res.Token.Permissions)
	require.False(t, res.Token.Expires.IsZero())

	require.Equal(t, testAppID, seen.Get("client_id"))
	require.Equal(t, testRedirect, seen.Get("redirect_uri"))
	require.Equal(t, "S256", seen.Get("code_challenge_method"))
	require.NotEmpty(t, seen.Get("code_challenge"))
	require.NotEmpty(t, g.lastForm.Get("code_verifier"))

	current, err := p.CurrentAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, testToken, current.Token)
}

func TestLogin_Cancelled(t *testing.T) {
	g := newGraphFake(t)
	p := newProvider(t, g, facebook.AuthorizerFunc(func(context.Context, string, string) (string, error) {
		return "", &facebook.AuthorizationError{Code: "access_denied", Reason: "user_denied"}
	}))

	res, err := p.Login(context.Background(), []string{"public_profile"})
	require.NoError(t, err)
	require.Equal(t, provider.StatusCancelled, res.Status)
	require.Nil(t, res.Token)

	current, err := p.CurrentAccessToken(context.Background())
	require.NoError(t, err)
	require.Nil(t, current)
}

func TestLogin_AccessDenied(t *testing.T) {
	g := newGraphFake(t)
	p := newProvider(t, g, facebook.AuthorizerFunc(func(context.Context, string, string) (string, error) {
		return "", &facebook.AuthorizationError{Code: "access_denied", Reason: "app_not_setup"}
	}))

	res, err := p.Login(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, provider.StatusFailed, res.Status)
	require.ErrorIs(t, res.Err, provider.ErrAccessDenied)
}

func TestLogin_ExchangeFails(t *testing.T) {
	g := newGraphFake(t)
	p := newProvider(t, g, facebook.AuthorizerFunc(func(context.Context, string, string) (string, error) {
		return "wrong-code", nil
	}))

	res, err := p.Login(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, provider.StatusFailed, res.Status)
	require.Error(t, res.Err)
	require.NotEmpty(t, res.Message)
}

func TestLogin_RejectsConcurrentLogin(t *testing.T) {
	g := newGraphFake(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	p := newProvider(t, g, facebook.AuthorizerFunc(func(ctx context.Context, _ string, _ string) (string, error) {
		close(entered)
		<-release
		return testCode, nil
	}))

	done := make(chan provider.LoginResult)
	go func() {
		res, _ := p.Login(context.Background(), nil)
		done <- res
	}()
	<-entered

	_, err := p.Login(context.Background(), nil)
	require.ErrorIs(t, err, provider.ErrLoginInProgress)

	close(release)
	require.Equal(t, provider.StatusSuccess, (<-done).Status)
}

func TestLogin_VerifiesIDToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	g := newGraphFake(t)

	authorizer := facebook.AuthorizerFunc(func(_ context.Context, authURL, _ string) (string, error) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		require.Contains(t, u.Query().Get("scope"), "openid")
		nonce := u.Query().Get("nonce")
		require.NotEmpty(t, nonce)

		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":   facebook.LimitedLoginIssuer,
			"aud":   testAppID,
			"sub":   testUserID,
			"nonce": nonce,
			"name":  "Ada Lovelace",
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(time.Hour).Unix(),
		}).SignedString(key)
		require.NoError(t, err)
		g.mu.Lock()
		g.idToken = signed
		g.mu.Unlock()
		return testCode, nil
	})

	p := newProvider(t, g, authorizer, func(c *facebook.Config) {
		c.OpenID = true
		c.IDTokenKeySet = &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	})

	res, err := p.Login(context.Background(), []string{"public_profile"})
	require.NoError(t, err)
	require.Equal(t, provider.StatusSuccess, res.Status, "%v", res.Err)
	require.Equal(t, testUserID, res.Token.UserID)
}

func TestLogin_RejectsIDTokenWithWrongNonce(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	g := newGraphFake(t)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   facebook.LimitedLoginIssuer,
		"aud":   testAppID,
		"sub":   testUserID,
		"nonce": "replayed",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	require.NoError(t, err)
	g.idToken = signed

	p := newProvider(t, g, consentingAuthorizer(t, nil), func(c *facebook.Config) {
		c.OpenID = true
		c.IDTokenKeySet = &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	})

	res, err := p.Login(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, provider.StatusFailed, res.Status)
	require.ErrorIs(t, res.Err, facebook.ErrNonceMismatch)
}

func TestUserData(t *testing.T) {
	g := newGraphFake(t)
	p := newProvider(t, g, consentingAuthorizer(t, nil))

	_, err := p.UserData(context.Background(), []string{"id"})
	require.ErrorIs(t, err, provider.ErrNoAccessToken)

	_, err = p.Login(context.Background(), nil)
	require.NoError(t, err)

	data, err := p.UserData(context.Background(), []string{"id", "name", "email", "picture.type(large)"})
	require.NoError(t, err)
	require.Equal(t, testUserID, data["id"])
	require.Equal(t, "id,name,email,picture.type(large)", data["fields"])
}

func TestUserData_GraphErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"expired token", http.StatusBadRequest, `{"error":{"message":"Session has expired","type":"OAuthException","code":190,"error_subcode":463}}`, provider.ErrTokenInvalid},
		{"missing permission", http.StatusForbidden, `{"error":{"message":"Requires email permission","type":"OAuthException","code":200}}`, provider.ErrPermissionDenied},
		{"bare unauthorized", http.StatusUnauthorized, `not json`, provider.ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGraphFake(t)
			p := newProvider(t, g, consentingAuthorizer(t, nil))
			_, err := p.Login(context.Background(), nil)
			require.NoError(t, err)

			g.failMe(tt.status, tt.body)
			_, err = p.UserData(context.Background(), []string{"id"})
			require.ErrorIs(t, err, tt.want)

			var graphErr *facebook.GraphError
			require.ErrorAs(t, err, &graphErr)
			require.Equal(t, tt.status, graphErr.Status)
		})
	}
}

func TestUserData_NetworkFailure(t *testing.T) {
	g := newGraphFake(t)
	p := newProvider(t, g, consentingAuthorizer(t, nil))
	_, err := p.Login(context.Background(), nil)
	require.NoError(t, err)

	g.server.Close()
	_, err = p.UserData(context.Background(), []string{"id"})
	require.ErrorIs(t, err, provider.ErrNetwork)
}

func TestValidate(t *testing.T) {
	g := newGraphFake(t)
	p := newProvider(t, g, consentingAuthorizer(t, nil))

	token, err := p.Validate(context.Background(), testToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, token.UserID)
	require.Equal(t, []string{"public_profile", "email"}, token.Permissions)
	require.Equal(t, time.Unix(1900000000, 0).UTC(), token.Expires)

	current, err := p.CurrentAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, testToken, current.Token)

	_, err = p.Validate(context.Background(), "revoked")
	require.ErrorIs(t, err, provider.ErrTokenInvalid)

	_, err = p.Validate(context.Background(), "")
	require.ErrorIs(t, err, provider.ErrNoAccessToken)
}

func TestRefreshAccessToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := newGraphFake(t)
	cfg := facebook.Config{
		AppID:     testAppID,
		AppSecret: testAppSecret,
		GraphURL:  g.server.URL,
		Endpoint:  g.endpoint(),
	}
	p, err := facebook.New(cfg, consentingAuthorizer(t, nil),
		facebook.WithHTTPClient(g.server.Client()),
		facebook.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = p.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, provider.ErrNoAccessToken)

	_, err = p.Validate(context.Background(), testToken)
	require.NoError(t, err)

	refreshed, err := p.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "EAAB-long-lived", refreshed.Token)
	require.Equal(t, testUserID, refreshed.UserID)
	require.Equal(t, now.Add(5184000*time.Second), refreshed.Expires)
}

func TestLogOut(t *testing.T) {
	g := newGraphFake(t)
	p := newProvider(t, g, consentingAuthorizer(t, nil))

	require.NoError(t, p.LogOut(context.Background()))
	require.Equal(t, 0, g.revokes())

	_, err := p.Login(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, p.LogOut(context.Background()))
	require.Equal(t, 1, g.revokes())

	current, err := p.CurrentAccessToken(context.Background())
	require.NoError(t, err)
	require.Nil(t, current)
}

func TestLogOut_ClearsTokenWhenRevokeFails(t *testing.T) {
	g := newGraphFake(t)
	g.revokeFail = true
	p := newProvider(t, g, consentingAuthorizer(t, nil))
	_, err := p.Login(context.Background(), nil)
	require.NoError(t, err)

	require.Error(t, p.LogOut(context.Background()))
	current, err := p.CurrentAccessToken(context.Background())
	require.NoError(t, err)
	require.Nil(t, current)
}
