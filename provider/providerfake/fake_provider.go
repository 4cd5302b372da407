// Package fakeprovider is a scriptable in-memory provider.Provider for tests.
// It issues HS256 JWT access tokens so Validate can check them for real.
package fakeprovider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-social-session/provider"
)

const DefaultUserID = "10001"

// Calls counts invocations per method.
type Calls struct {
	Login    int
	UserData int
	Validate int
	Refresh  int
	LogOut   int
}

type gate struct {
	started chan struct{}
	release chan struct{}
}

type Option func(*FakeProvider)

func WithNowTime(now func() time.Time) Option {
	return func(p *FakeProvider) {
		p.now = now
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(p *FakeProvider) {
		p.tokenTTL = ttl
	}
}

// WithProfile sets the Graph fields UserData returns.
func WithProfile(profile map[string]any) Option {
	return func(p *FakeProvider) {
		p.profile = profile
	}
}

type FakeProvider struct {
	mu       sync.Mutex
	secret   []byte
	now      func() time.Time
	tokenTTL time.Duration
	profile  map[string]any

	current *provider.AccessToken
	revoked map[string]bool

	loginBusy   bool
	loginResult *provider.LoginResult
	loginPanic  any
	loginGate   *gate
	refreshGate *gate
	userDataErr error
	validateErr error
	validated   *provider.AccessToken
	refreshErr  error
	logOutErr   error
	lastPerms   []string
	lastFields  []string
	calls       Calls
}

var _ provider.Provider = (*FakeProvider)(nil)

func NewFakeProvider(options ...Option) *FakeProvider {
	p := &FakeProvider{
		secret:   []byte(uuid.NewString()),
		now:      time.Now,
		tokenTTL: time.Hour,
		profile: map[string]any{
			"id":    DefaultUserID,
			"name":  "Test User",
			"email": "test.user@example.com",
			"picture": map[string]any{
				"data": map[string]any{"url": "https://example.com/pic.jpg"},
			},
		},
		revoked: map[string]bool{},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// IssueToken mints a signed token for the profile's user expiring at expires.
func (p *FakeProvider) IssueToken(expires time.Time, permissions ...string) *provider.AccessToken {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issue(expires, permissions)
}

func (p *FakeProvider) issue(expires time.Time, permissions []string) *provider.AccessToken {
	userID, _ := p.profile["id"].(string)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(p.now()),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		panic(fmt.Sprintf("fakeprovider: sign token: %v", err))
	}
	return &provider.AccessToken{
		Token:       signed,
		UserID:      userID,
		Expires:     expires.Truncate(time.Second),
		Permissions: append([]string(nil), permissions...),
	}
}

// ScriptLogin makes the next logins return result instead of succeeding.
// A nil result restores the default.
func (p *FakeProvider) ScriptLogin(result *provider.LoginResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginResult = result
}

// PanicOnLogin makes Login panic with v.
func (p *FakeProvider) PanicOnLogin(v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginPanic = v
}

// BlockLogin holds the next Login until release is called. started is
// closed once Login is waiting.
func (p *FakeProvider) BlockLogin() (started <-chan struct{}, release func()) {
	g := newGate()
	p.mu.Lock()
	p.loginGate = g
	p.mu.Unlock()
	return g.started, g.open
}

// BlockRefresh holds RefreshAccessToken until release is called.
func (p *FakeProvider) BlockRefresh() (started <-chan struct{}, release func()) {
	g := newGate()
	p.mu.Lock()
	p.refreshGate = g
	p.mu.Unlock()
	return g.started, g.open
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) open() {
	select {
	case <-g.release:
	default:
		close(g.release)
	}
}

func (g *gate) wait(ctx context.Context) error {
	select {
	case <-g.started:
	default:
		close(g.started)
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *FakeProvider) FailUserData(err error) { p.setErr(&p.userDataErr, err) }
func (p *FakeProvider) FailValidate(err error) { p.setErr(&p.validateErr, err) }
func (p *FakeProvider) FailRefresh(err error)  { p.setErr(&p.refreshErr, err) }
func (p *FakeProvider) FailLogOut(err error)   { p.setErr(&p.logOutErr, err) }

func (p *FakeProvider) setErr(field *error, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	*field = err
}

// ScriptValidate makes Validate accept any unrevoked token and report
// token in its place. A nil token restores JWT checking.
func (p *FakeProvider) ScriptValidate(token *provider.AccessToken) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validated = copyToken(token)
}

// Revoke invalidates token for Validate and UserData.
func (p *FakeProvider) Revoke(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[token] = true
}

// SetCurrent replaces the token the provider holds.
func (p *FakeProvider) SetCurrent(token *provider.AccessToken) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = copyToken(token)
}

func (p *FakeProvider) Calls() Calls {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *FakeProvider) LastPermissions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lastPerms...)
}

func (p *FakeProvider) LastFields() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lastFields...)
}

func (p *FakeProvider) Login(ctx context.Context, permissions []string) (provider.LoginResult, error) {
	p.mu.Lock()
	p.calls.Login++
	if p.loginBusy {
		p.mu.Unlock()
		return provider.LoginResult{}, provider.ErrLoginInProgress
	}
	p.loginBusy = true
	p.lastPerms = append([]string(nil), permissions...)
	g := p.loginGate
	p.loginGate = nil
	panicValue := p.loginPanic
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.loginBusy = false
		p.mu.Unlock()
	}()

	if panicValue != nil {
		panic(panicValue)
	}
	if g != nil {
		if err := g.wait(ctx); err != nil {
			return provider.LoginResult{Status: provider.StatusCancelled, Message: "Login was cancelled"}, nil
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loginResult != nil {
		return *p.loginResult, nil
	}
	token := p.issue(p.now().Add(p.tokenTTL), permissions)
	p.current = copyToken(token)
	return provider.LoginResult{Status: provider.StatusSuccess, Token: token}, nil
}

func (p *FakeProvider) UserData(_ context.Context, fields []string) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls.UserData++
	p.lastFields = append([]string(nil), fields...)
	if p.userDataErr != nil {
		return nil, p.userDataErr
	}
	if p.current == nil {
		return nil, errors.Wrap(provider.ErrNoAccessToken, "[FakeProvider.UserData]")
	}
	if p.revoked[p.current.Token] {
		return nil, errors.Wrap(provider.ErrTokenInvalid, "[FakeProvider.UserData]")
	}
	out := make(map[string]any, len(p.profile))
	for k, v := range p.profile {
		out[k] = v
	}
	return out, nil
}

func (p *FakeProvider) CurrentAccessToken(_ context.Context) (*provider.AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyToken(p.current), nil
}

func (p *FakeProvider) Validate(_ context.Context, token string) (*provider.AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls.Validate++
	if p.validateErr != nil {
		return nil, p.validateErr
	}
	if p.revoked[token] {
		return nil, errors.Wrap(provider.ErrTokenInvalid, "[FakeProvider.Validate] revoked")
	}
	if p.validated != nil {
		return copyToken(p.validated), nil
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, errors.Wrap(provider.ErrTokenInvalid, err.Error())
	}

	validated := &provider.AccessToken{Token: token, UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		validated.Expires = claims.ExpiresAt.Time
	}
	p.current = copyToken(validated)
	return validated, nil
}

func (p *FakeProvider) RefreshAccessToken(ctx context.Context) (*provider.AccessToken, error) {
	p.mu.Lock()
	p.calls.Refresh++
	g := p.refreshGate
	p.refreshGate = nil
	p.mu.Unlock()

	if g != nil {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	if p.current == nil {
		return nil, errors.Wrap(provider.ErrNoAccessToken, "[FakeProvider.RefreshAccessToken]")
	}
	token := p.issue(p.now().Add(p.tokenTTL), p.current.Permissions)
	p.current = copyToken(token)
	return token, nil
}

func (p *FakeProvider) LogOut(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls.LogOut++
	if p.current != nil {
		p.revoked[p.current.Token] = true
	}
	p.current = nil
	return p.logOutErr
}

func copyToken(t *provider.AccessToken) *provider.AccessToken {
	if t == nil {
		return nil
	}
	c := *t
	c.Permissions = append([]string(nil), t.Permissions...)
	return &c
}
