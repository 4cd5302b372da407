package session

import (
	"context"

	"github.com/pkg/errors"
)

// Logout revokes the session with the provider, then always wipes the
// credential, clears the in-memory session and publishes EventLoggedOut.
// A provider failure is returned after the local clear has happened.
func (m *Manager) Logout(ctx context.Context) (err error) {
	release, err := m.begin("logout")
	if err != nil {
		return err
	}
	defer release()

	defer func() {
		wipeErr := m.clearSession(ctx, ReasonLogout)
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrUnexpected, "[Manager.Logout] panic: %v", r)
		}
		if wipeErr != nil {
			m.logger.Warn().Err(wipeErr).Msg("failed to wipe credential on logout")
			err = joinErrors(err, wipeErr)
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.metrics.RecordLogout(outcome)
		m.logger.Info().Bool("clean", err == nil).Msg("logged out")
	}()

	if err := m.provider.LogOut(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("provider logout failed")
		return kindError(ErrProviderFailure, err)
	}
	return nil
}
