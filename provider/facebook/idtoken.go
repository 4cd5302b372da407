package facebook

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
)

const (
	LimitedLoginIssuer  = "https://www.facebook.com"
	LimitedLoginJWKSURL = "https://limited.facebook.com/.well-known/oauth/openid/jwks/"
)

var ErrNonceMismatch = errors.New("id_token nonce mismatch")

// IDTokenClaims are the Limited Login claims the provider reads.
type IDTokenClaims struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
	Nonce   string `json:"nonce"`
}

func (p *Provider) idTokenVerifier() *oidc.IDTokenVerifier {
	p.verifierOnce.Do(func() {
		keySet := p.cfg.IDTokenKeySet
		if keySet == nil {
			keySet = oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), p.httpClient), LimitedLoginJWKSURL)
		}
		p.verifier = oidc.NewVerifier(LimitedLoginIssuer, keySet, &oidc.Config{
			ClientID: p.cfg.AppID,
			Now:      p.now,
		})
	})
	return p.verifier
}

func (p *Provider) verifyIDToken(ctx context.Context, raw, nonce string) (*IDTokenClaims, error) {
	idToken, err := p.idTokenVerifier().Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if idToken.Nonce != nonce {
		return nil, ErrNonceMismatch
	}
	var claims IDTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "decode id_token claims")
	}
	return &claims, nil
}
