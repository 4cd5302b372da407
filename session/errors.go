package session

import (
	"errors"
	"fmt"
)

var (
	ErrOperationInProgress = errors.New("session operation already in progress")
	ErrCancelled           = errors.New("login cancelled")
	ErrProviderFailure     = errors.New("login provider failure")
	ErrProfileFetchFailure = errors.New("profile fetch failed")
	ErrStorageFailure      = errors.New("credential storage failure")
	ErrNotLoggedIn         = errors.New("not logged in")
	ErrSessionExpired      = errors.New("session expired")
	ErrUnexpected          = errors.New("unexpected error")
)

// kindError tags cause with one of the sentinels above while keeping the
// cause reachable through errors.Is and errors.As.
func kindError(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

func joinErrors(errs ...error) error {
	return errors.Join(errs...)
}
