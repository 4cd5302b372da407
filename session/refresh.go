package session

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-social-session/credentials"
)

// Refresh outcomes reported to metrics.
const (
	refreshRefreshed   = "refreshed"
	refreshNotNeeded   = "not_needed"
	refreshNotLoggedIn = "not_logged_in"
	refreshBusy        = "busy"
	refreshFailed      = "failed"
	refreshStale       = "stale"
)

// RefreshTokenIfNeeded asks the provider for a new token when the one it
// holds has expired, and persists the new token if it is itself live.
// It reports whether a refresh happened and never fails: errors are logged.
// Concurrent callers share a single refresh.
func (m *Manager) RefreshTokenIfNeeded(ctx context.Context) bool {
	v, _, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.refresh(ctx), nil
	})
	refreshed, _ := v.(bool)
	return refreshed
}

func (m *Manager) refresh(ctx context.Context) (refreshed bool) {
	outcome := refreshFailed
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("panic", fmt.Sprint(r)).Msg("token refresh panicked")
			refreshed, outcome = false, refreshFailed
		}
		m.metrics.RecordRefresh(outcome)
	}()

	release, err := m.begin("refresh")
	if err != nil {
		m.logger.Debug().Err(err).Msg("skipping token refresh")
		outcome = refreshBusy
		return false
	}
	defer release()

	m.mu.RLock()
	current := m.session.clone()
	m.mu.RUnlock()
	if current == nil {
		outcome = refreshNotLoggedIn
		return false
	}

	token, err := m.provider.CurrentAccessToken(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("could not read provider token")
		return false
	}
	now := m.nowTime()
	if token != nil && !token.IsExpired(now) {
		outcome = refreshNotNeeded
		return false
	}

	fresh, err := m.provider.RefreshAccessToken(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", current.User.ID).Msg("token refresh failed")
		return false
	}
	if fresh == nil || fresh.Token == "" || fresh.IsExpired(now) {
		m.logger.Warn().Str("user_id", current.User.ID).Msg("provider returned an expired token, not persisting")
		outcome = refreshStale
		return false
	}

	current.AccessToken = fresh.Token
	current.Expiry = fresh.Expires
	if err := m.persistToken(ctx, current); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist refreshed token, wiping partial write")
		m.wipeQuietly(ctx)
	}

	m.mu.Lock()
	if m.session != nil {
		m.session.AccessToken = current.AccessToken
		m.session.Expiry = current.Expiry
	}
	m.mu.Unlock()

	m.logger.Info().Str("user_id", current.User.ID).Time("expires", current.Expiry).Msg("access token refreshed")
	outcome = refreshRefreshed
	return true
}

func (m *Manager) persistToken(ctx context.Context, s *Session) error {
	if err := m.store.Write(ctx, credentials.KeyAccessToken, s.AccessToken); err != nil {
		return kindError(ErrStorageFailure, err)
	}
	if err := m.store.Write(ctx, credentials.KeyTokenExpiry, formatExpiry(s.Expiry)); err != nil {
		return kindError(ErrStorageFailure, err)
	}
	return nil
}
