package facebook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-social-session/internal/utils"
	"github.com/jrsteele09/go-social-session/provider"
)

// GraphError is the Graph API error envelope:
// {"error":{"message":"...","type":"OAuthException","code":190,"error_subcode":463}}.
type GraphError struct {
	Status    int    `json:"-"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

func (e *GraphError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph api error: status %d", e.Status)
	}
	return fmt.Sprintf("graph api error %d: %s", e.Code, e.Message)
}

// Unwrap maps Graph error codes onto provider sentinels.
func (e *GraphError) Unwrap() error {
	switch {
	case e.Code == 190 || e.Code == 102:
		return provider.ErrTokenInvalid
	case e.Code == 10 || (e.Code >= 200 && e.Code <= 299):
		return provider.ErrPermissionDenied
	case e.Status == http.StatusUnauthorized:
		return provider.ErrTokenInvalid
	case e.Status == http.StatusForbidden:
		return provider.ErrPermissionDenied
	}
	return nil
}

type networkErr struct {
	err error
}

func (e *networkErr) Error() string { return "network failure: " + e.err.Error() }

func (e *networkErr) Is(target error) bool { return target == provider.ErrNetwork }

func (e *networkErr) Unwrap() error { return e.err }

func networkError(err error) error {
	if err == nil {
		return nil
	}
	return &networkErr{err: err}
}

// appSecretProof signs token with the app secret, as Graph expects when
// "Require App Secret" is enabled.
func (p *Provider) appSecretProof(token string) string {
	mac := hmac.New(sha256.New, []byte(p.cfg.AppSecret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *Provider) appToken() string {
	return p.cfg.AppID + "|" + p.cfg.AppSecret
}

func (p *Provider) graph(ctx context.Context, method, path string, query url.Values, out any) error {
	u := p.cfg.GraphURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return networkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return networkError(err)
	}

	if resp.StatusCode >= 300 {
		var envelope struct {
			Error *GraphError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			envelope.Error.Status = resp.StatusCode
			return envelope.Error
		}
		return &GraphError{Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "decode graph response")
	}
	return nil
}

// UserData fetches /me with the requested fields for the current token.
func (p *Provider) UserData(ctx context.Context, fields []string) (map[string]any, error) {
	token, err := p.currentToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.UserData]")
	}
	query := url.Values{
		"access_token":    {token.Token},
		"appsecret_proof": {p.appSecretProof(token.Token)},
	}
	if len(fields) > 0 {
		query.Set("fields", strings.Join(fields, ","))
	}
	var data map[string]any
	if err := p.graph(ctx, http.MethodGet, "/me", query, &data); err != nil {
		return nil, errors.Wrap(err, "[Provider.UserData] GET /me")
	}
	return data, nil
}

type debugTokenResponse struct {
	Data struct {
		AppID     string `json:"app_id"`
		Type      string `json:"type"`
		IsValid   bool   `json:"is_valid"`
		ExpiresAt int64  `json:"expires_at"`
		Scopes    []any  `json:"scopes"`
		UserID    string `json:"user_id"`
	} `json:"data"`
}

// Validate inspects token through /debug_token and adopts it when it is
// live and was issued to this app.
func (p *Provider) Validate(ctx context.Context, token string) (*provider.AccessToken, error) {
	if token == "" {
		return nil, errors.Wrap(provider.ErrNoAccessToken, "[Provider.Validate]")
	}
	query := url.Values{
		"input_token":  {token},
		"access_token": {p.appToken()},
	}
	var resp debugTokenResponse
	if err := p.graph(ctx, http.MethodGet, "/debug_token", query, &resp); err != nil {
		return nil, errors.Wrap(err, "[Provider.Validate] GET /debug_token")
	}
	if !resp.Data.IsValid {
		return nil, errors.Wrap(provider.ErrTokenInvalid, "[Provider.Validate] token is not valid")
	}
	if resp.Data.AppID != "" && resp.Data.AppID != p.cfg.AppID {
		return nil, errors.Wrapf(provider.ErrTokenInvalid, "[Provider.Validate] token issued to app %s", resp.Data.AppID)
	}

	accessToken := &provider.AccessToken{
		Token:       token,
		UserID:      resp.Data.UserID,
		Permissions: utils.ToStringSlice(resp.Data.Scopes),
	}
	if resp.Data.ExpiresAt > 0 {
		accessToken.Expires = time.Unix(resp.Data.ExpiresAt, 0).UTC()
	}
	p.setCurrent(accessToken)
	return copyToken(accessToken), nil
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RefreshAccessToken swaps the current token for a long-lived one with the
// fb_exchange_token grant.
func (p *Provider) RefreshAccessToken(ctx context.Context) (*provider.AccessToken, error) {
	current, err := p.currentToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.RefreshAccessToken]")
	}
	query := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {p.cfg.AppID},
		"client_secret":     {p.cfg.AppSecret},
		"fb_exchange_token": {current.Token},
	}
	var resp exchangeResponse
	if err := p.graph(ctx, http.MethodGet, "/oauth/access_token", query, &resp); err != nil {
		return nil, errors.Wrap(err, "[Provider.RefreshAccessToken] exchange")
	}
	if resp.AccessToken == "" {
		return nil, errors.Wrap(provider.ErrTokenInvalid, "[Provider.RefreshAccessToken] empty access_token in response")
	}

	refreshed := copyToken(current)
	refreshed.Token = resp.AccessToken
	refreshed.Expires = time.Time{}
	if resp.ExpiresIn > 0 {
		refreshed.Expires = p.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}
	p.setCurrent(refreshed)
	return copyToken(refreshed), nil
}

// LogOut revokes the app's permissions for the current token. The token is
// forgotten locally even when revocation fails.
func (p *Provider) LogOut(ctx context.Context) error {
	current, err := p.currentToken()
	if err != nil {
		return nil
	}
	defer p.setCurrent(nil)

	query := url.Values{
		"access_token":    {current.Token},
		"appsecret_proof": {p.appSecretProof(current.Token)},
	}
	if err := p.graph(ctx, http.MethodDelete, "/me/permissions", query, nil); err != nil {
		return errors.Wrap(err, "[Provider.LogOut] DELETE /me/permissions")
	}
	return nil
}
