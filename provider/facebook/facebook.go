// Package facebook implements provider.Provider against Facebook Login and
// the Graph API.
package facebook

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	fboauth "golang.org/x/oauth2/facebook"

	"github.com/jrsteele09/go-social-session/provider"
)

const DefaultGraphURL = "https://graph.facebook.com/v19.0"

// Config describes the Facebook app the provider logs in with.
type Config struct {
	AppID       string
	AppSecret   string
	RedirectURL string

	// GraphURL defaults to DefaultGraphURL.
	GraphURL string

	// Endpoint defaults to the x/oauth2 Facebook endpoint.
	Endpoint oauth2.Endpoint

	// OpenID requests the openid scope and verifies the returned id_token.
	OpenID bool

	// IDTokenKeySet overrides the remote Limited Login JWKS.
	IDTokenKeySet oidc.KeySet
}

type Option func(*Provider)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

func WithNowTime(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// Provider talks to Facebook on behalf of one user.
type Provider struct {
	cfg        Config
	authorizer Authorizer
	httpClient *http.Client
	now        func() time.Time

	loginBusy atomic.Bool

	mu      sync.RWMutex
	current *provider.AccessToken

	verifierOnce sync.Once
	verifier     *oidc.IDTokenVerifier
}

var _ provider.Provider = (*Provider)(nil)

func New(cfg Config, authorizer Authorizer, options ...Option) (*Provider, error) {
	if cfg.AppID == "" {
		return nil, errors.New("[facebook.New] AppID is required")
	}
	if cfg.AppSecret == "" {
		return nil, errors.New("[facebook.New] AppSecret is required")
	}
	if authorizer == nil {
		return nil, errors.New("[facebook.New] authorizer is required")
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = fboauth.Endpoint
	}

	p := &Provider{
		cfg:        cfg,
		authorizer: authorizer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

func (p *Provider) oauthConfig(permissions []string) *oauth2.Config {
	scopes := append([]string(nil), permissions...)
	if p.cfg.OpenID && !contains(scopes, oidc.ScopeOpenID) {
		scopes = append(scopes, oidc.ScopeOpenID)
	}
	return &oauth2.Config{
		ClientID:     p.cfg.AppID,
		ClientSecret: p.cfg.AppSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Endpoint:     p.cfg.Endpoint,
		Scopes:       scopes,
	}
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// Login runs the authorization code flow with PKCE through the authorizer.
func (p *Provider) Login(ctx context.Context, permissions []string) (provider.LoginResult, error) {
	if !p.loginBusy.CompareAndSwap(false, true) {
		return provider.LoginResult{}, provider.ErrLoginInProgress
	}
	defer p.loginBusy.Store(false)

	conf := p.oauthConfig(permissions)
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}

	var nonce string
	if p.cfg.OpenID {
		nonce = uuid.NewString()
		opts = append(opts, oidc.Nonce(nonce))
	}

	code, err := p.authorizer.Authorize(ctx, conf.AuthCodeURL(state, opts...), state)
	if err != nil {
		return authorizeFailure(err), nil
	}

	tok, err := conf.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return failed("Facebook login failed", errors.Wrap(exchangeError(err), "[Provider.Login] token exchange")), nil
	}

	accessToken := &provider.AccessToken{
		Token:       tok.AccessToken,
		Expires:     tok.Expiry,
		Permissions: append([]string(nil), permissions...),
	}

	if p.cfg.OpenID {
		rawIDToken, _ := tok.Extra("id_token").(string)
		if rawIDToken == "" {
			return failed("Facebook login failed", errors.New("[Provider.Login] no id_token in token response")), nil
		}
		claims, err := p.verifyIDToken(ctx, rawIDToken, nonce)
		if err != nil {
			return failed("Facebook login failed", errors.Wrap(err, "[Provider.Login] verify id_token")), nil
		}
		accessToken.UserID = claims.Subject
	}

	p.setCurrent(accessToken)
	return provider.LoginResult{Status: provider.StatusSuccess, Token: copyToken(accessToken)}, nil
}

func authorizeFailure(err error) provider.LoginResult {
	switch {
	case errors.Is(err, ErrAuthorizationCancelled):
		return provider.LoginResult{Status: provider.StatusCancelled, Message: "Login was cancelled"}
	case errors.Is(err, provider.ErrAccessDenied):
		return failed("Facebook denied access", err)
	case errors.Is(err, context.DeadlineExceeded):
		return failed("Facebook login timed out", err)
	}
	return failed("Facebook login failed", err)
}

func failed(message string, err error) provider.LoginResult {
	return provider.LoginResult{Status: provider.StatusFailed, Message: message, Err: err}
}

func exchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "access_denied" {
			return errors.Wrap(provider.ErrAccessDenied, retrieveErr.Error())
		}
		return err
	}
	return networkError(err)
}

func (p *Provider) CurrentAccessToken(_ context.Context) (*provider.AccessToken, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyToken(p.current), nil
}

func (p *Provider) setCurrent(token *provider.AccessToken) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = copyToken(token)
}

func (p *Provider) currentToken() (*provider.AccessToken, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil || p.current.Token == "" {
		return nil, provider.ErrNoAccessToken
	}
	return copyToken(p.current), nil
}

func copyToken(t *provider.AccessToken) *provider.AccessToken {
	if t == nil {
		return nil
	}
	c := *t
	c.Permissions = append([]string(nil), t.Permissions...)
	c.DeclinedPermissions = append([]string(nil), t.DeclinedPermissions...)
	return &c
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
