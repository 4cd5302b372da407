package session

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-social-session/credentials"
	"github.com/jrsteele09/go-social-session/identity"
)

// Restore outcomes reported to metrics.
const (
	restoreRestored  = "restored"
	restoreEmpty     = "empty"
	restoreReadError = "read_error"
	restoreInvalid   = "invalid"
	restoreExpired   = "expired"
	restoreRejected  = "rejected"
)

// Restore adopts the persisted credential if it is complete, unexpired and
// still accepted by the provider. Anything else leaves the manager logged
// out with the credential wiped. Only ErrOperationInProgress is returned;
// every other problem degrades to "no session".
func (m *Manager) Restore(ctx context.Context) (*identity.User, error) {
	release, err := m.begin("restore")
	if err != nil {
		return nil, err
	}
	defer release()

	if user := m.CurrentUser(); user != nil {
		return user, nil
	}

	s, outcome := m.loadPersisted(ctx)
	m.metrics.RecordRestore(outcome)
	if s == nil {
		m.dropStaleSession(ctx)
		return nil, nil
	}

	m.adopt(s, ReasonRestore)
	m.logger.Info().Str("user_id", s.User.ID).Msg("session restored")
	return s.User.Clone(), nil
}

func (m *Manager) loadPersisted(ctx context.Context) (*Session, string) {
	token, hasToken, tokenErr := m.store.Read(ctx, credentials.KeyAccessToken)
	expiry, hasExpiry, expiryErr := m.store.Read(ctx, credentials.KeyTokenExpiry)
	userData, hasUser, userErr := m.store.Read(ctx, credentials.KeyUserData)

	if err := errors.Join(tokenErr, expiryErr, userErr); err != nil {
		m.logger.Warn().Err(err).Msg("credential unreadable, clearing")
		m.wipeQuietly(ctx)
		return nil, restoreReadError
	}

	if !hasToken || token == "" {
		if hasExpiry || hasUser {
			m.logger.Debug().Msg("partial credential without token, clearing")
			m.wipeQuietly(ctx)
		}
		return nil, restoreEmpty
	}

	if !hasExpiry {
		m.logger.Debug().Msg("credential has no expiry, clearing")
		m.wipeQuietly(ctx)
		return nil, restoreInvalid
	}
	expiresAt, err := parseExpiry(expiry)
	if err != nil {
		m.logger.Debug().Err(err).Msg("credential expiry unparsable, clearing")
		m.wipeQuietly(ctx)
		return nil, restoreInvalid
	}
	if !expiresAt.IsZero() && m.nowTime().After(expiresAt) {
		m.logger.Info().Time("expired_at", expiresAt).Msg("persisted session expired, clearing")
		m.wipeQuietly(ctx)
		return nil, restoreExpired
	}

	if !hasUser {
		m.logger.Debug().Msg("credential has no user data, clearing")
		m.wipeQuietly(ctx)
		return nil, restoreInvalid
	}
	user, err := identity.Decode(userData)
	if err != nil {
		m.logger.Debug().Err(err).Msg("credential user data unparsable, clearing")
		m.wipeQuietly(ctx)
		return nil, restoreInvalid
	}

	validated, err := m.provider.Validate(ctx, token)
	if err != nil {
		m.logger.Info().Err(err).Str("user_id", user.ID).Msg("provider rejected persisted token, clearing")
		m.wipeQuietly(ctx)
		return nil, restoreRejected
	}

	s := &Session{AccessToken: token, Expiry: expiresAt, User: user}
	if validated != nil && validated.IsExpired(m.nowTime()) {
		m.logger.Info().Time("expired_at", validated.Expires).Msg("provider reports token expired, clearing")
		m.wipeQuietly(ctx)
		return nil, restoreExpired
	}
	if validated != nil && !validated.Expires.IsZero() && !validated.Expires.Equal(expiresAt) {
		s.Expiry = validated.Expires
		if err := m.store.Write(ctx, credentials.KeyTokenExpiry, formatExpiry(s.Expiry)); err != nil {
			m.logger.Warn().Err(err).Msg("failed to update persisted expiry")
		}
	}
	return s, restoreRestored
}

// dropStaleSession leaves the manager logged out after a restore found
// nothing usable. An expired in-memory session is invalidated so
// subscribers see it go.
func (m *Manager) dropStaleSession(ctx context.Context) {
	m.mu.RLock()
	stale := m.session != nil
	m.mu.RUnlock()
	if !stale {
		m.setState(StateLoggedOut)
		return
	}
	if err := m.clearSession(ctx, ReasonInvalidated); err != nil {
		m.logger.Warn().Err(err).Msg("failed to wipe expired credential")
	}
}

func (m *Manager) wipeQuietly(ctx context.Context) {
	if err := m.wipe(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("failed to wipe credential")
	}
}
