package session

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-social-session/identity"
	"github.com/jrsteele09/go-social-session/provider"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeError:
		return "error"
	}
	return "unknown"
}

// LoginResult is the single terminal outcome of a Login call. User is set
// on success; Err and Message are set otherwise.
type LoginResult struct {
	Outcome Outcome
	User    *identity.User
	Err     error
	Message string
}

const (
	msgInProgress   = "A login is already in progress"
	msgCancelled    = "Login was cancelled"
	msgProvider     = "Facebook login failed"
	msgProfileFetch = "Could not load your Facebook profile"
	msgUnexpected   = "An unexpected error occurred during login"
)

// Login runs the provider login, fetches the identity and persists the
// credential. Only one Login runs at a time; an overlapping call returns
// ErrOperationInProgress without reaching the provider. Failures come back
// in the result, never as a panic.
func (m *Manager) Login(ctx context.Context) (result LoginResult) {
	release, err := m.begin("login")
	if err != nil {
		m.metrics.RecordLogin("in_progress")
		return LoginResult{Outcome: OutcomeError, Err: err, Message: msgInProgress}
	}
	defer release()

	m.mu.Lock()
	hadSession := m.session != nil
	m.state = StateAuthenticating
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("panic", fmt.Sprint(r)).Msg("login panicked")
			result = m.loginFailed(hadSession, errors.Wrapf(ErrUnexpected, "[Manager.Login] panic: %v", r), msgUnexpected)
		}
		m.metrics.RecordLogin(result.Outcome.String())
	}()

	res, err := m.provider.Login(ctx, m.permissions)
	if err != nil {
		if errors.Is(err, provider.ErrLoginInProgress) {
			return m.loginFailed(hadSession, kindError(ErrOperationInProgress, err), msgInProgress)
		}
		return m.loginFailed(hadSession, kindError(ErrProviderFailure, err), msgProvider)
	}

	switch res.Status {
	case provider.StatusCancelled:
		m.restoreStateAfterAbort(hadSession, StateLoggedOut)
		m.logger.Info().Msg("login cancelled by user")
		message := res.Message
		if message == "" {
			message = msgCancelled
		}
		return LoginResult{Outcome: OutcomeCancelled, Err: ErrCancelled, Message: message}
	case provider.StatusFailed:
		message := res.Message
		if message == "" {
			message = msgProvider
		}
		return m.loginFailed(hadSession, kindError(ErrProviderFailure, res.Err), message)
	case provider.StatusSuccess:
	default:
		return m.loginFailed(hadSession, errors.Wrapf(ErrUnexpected, "[Manager.Login] unknown provider status %d", res.Status), msgUnexpected)
	}

	if res.Token == nil || res.Token.Token == "" {
		return m.loginFailed(hadSession, kindError(ErrProviderFailure, provider.ErrNoAccessToken), msgProvider)
	}
	if res.Token.IsExpired(m.nowTime()) {
		return m.loginFailed(hadSession, kindError(ErrProviderFailure, provider.ErrTokenInvalid), msgProvider)
	}

	user, err := m.fetchUser(ctx)
	if err != nil {
		return m.loginFailed(hadSession, kindError(ErrProfileFetchFailure, err), msgProfileFetch)
	}

	s := &Session{AccessToken: res.Token.Token, Expiry: res.Token.Expires, User: user}
	if err := m.persist(ctx, s); err != nil {
		// Non-fatal: the session lives on in memory but not across a restart.
		m.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to persist credential, wiping partial write")
		if wipeErr := m.wipe(ctx); wipeErr != nil {
			m.logger.Warn().Err(wipeErr).Msg("failed to wipe partial credential")
		}
	}

	m.adopt(s, ReasonLogin)
	m.logger.Info().Str("user_id", user.ID).Msg("logged in")
	return LoginResult{Outcome: OutcomeSuccess, User: user.Clone()}
}

func (m *Manager) fetchUser(ctx context.Context) (*identity.User, error) {
	data, err := m.provider.UserData(ctx, m.userFields)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] provider.UserData")
	}
	user, err := identity.FromProviderData(data, m.nowTime())
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] identity.FromProviderData")
	}
	return user, nil
}

// loginFailed ends a login attempt in error. An earlier session survives a
// failed attempt; without one the manager moves to StateError.
func (m *Manager) loginFailed(hadSession bool, err error, message string) LoginResult {
	m.restoreStateAfterAbort(hadSession, StateError)
	m.logger.Warn().Err(err).Msg("login failed")
	return LoginResult{Outcome: OutcomeError, Err: err, Message: message}
}

func (m *Manager) restoreStateAfterAbort(hadSession bool, otherwise State) {
	if hadSession {
		m.setState(StateLoggedIn)
		return
	}
	m.setState(otherwise)
}
