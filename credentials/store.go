// Package credentials defines the secure key/value contract the session
// manager persists its credential under, plus the sealing shared by the
// encrypted backends.
package credentials

import (
	"context"
	"errors"
	"regexp"
)

// Fixed keys of the persisted credential.
const (
	KeyAccessToken = "facebook_access_token"
	KeyUserData    = "facebook_user_data"
	KeyTokenExpiry = "facebook_token_expiry"
)

// SessionKeys lists every key a session writes, in write order.
func SessionKeys() []string {
	return []string{KeyAccessToken, KeyTokenExpiry, KeyUserData}
}

var (
	ErrInvalidKey = errors.New("invalid credential key")
	ErrDecrypt    = errors.New("credential could not be decrypted")
)

// Store persists small secrets. Every call goes to the backing store; there
// is no caching and no multi-key atomicity, so callers must tolerate a
// partially written credential.
type Store interface {
	// Write creates or replaces the value under key.
	Write(ctx context.Context, key, value string) error

	// Read returns the value under key. found is false when nothing is stored.
	Read(ctx context.Context, key string) (value string, found bool, err error)

	// Delete removes key. Deleting an absent key succeeds.
	Delete(ctx context.Context, key string) error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// ValidateKey rejects keys that cannot safely name a file or row.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) || key == "." || key == ".." {
		return &StoreError{Op: "validate", Key: key, Err: ErrInvalidKey}
	}
	return nil
}

// StoreError describes a failed store operation.
type StoreError struct {
	Op  string // "read", "write", "delete", "validate"
	Key string
	Err error
}

func (e *StoreError) Error() string {
	msg := e.Op + " credential"
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Wipe deletes every session key, attempting all of them even when one fails.
func Wipe(ctx context.Context, store Store) error {
	var errs []error
	for _, key := range SessionKeys() {
		if err := store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
