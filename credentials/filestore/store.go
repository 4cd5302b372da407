// Package filestore keeps each credential in its own encrypted file.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-social-session/credentials"
	apperrors "github.com/jrsteele09/go-social-session/internal/errors"
)

const (
	saltFile  = "salt"
	extension = ".sec"
)

var _ credentials.Store = (*Store)(nil)

// Store is a credentials.Store backed by <dir>/<key>.sec files.
type Store struct {
	dir    string
	sealer *credentials.Sealer
}

// New opens (creating when needed) a store in dir whose key is derived from
// passphrase and the salt persisted in dir.
func New(dir, passphrase string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperrors.Wrapf(err, "[filestore.New] creating %s", dir)
	}
	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, err
	}
	key, err := credentials.DeriveKey(passphrase, salt)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[filestore.New] deriving key")
	}
	return NewWithKey(dir, key)
}

// NewWithKey opens a store using a raw 32 byte key.
func NewWithKey(dir string, key []byte) (*Store, error) {
	sealer, err := credentials.NewSealer(key)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[filestore.NewWithKey] sealer")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperrors.Wrapf(err, "[filestore.NewWithKey] creating %s", dir)
	}
	return &Store{dir: dir, sealer: sealer}, nil
}

func (s *Store) Write(ctx context.Context, key, value string) error {
	if err := credentials.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &credentials.StoreError{Op: "write", Key: key, Err: err}
	}
	sealed, err := s.sealer.Seal(key, []byte(value))
	if err != nil {
		return &credentials.StoreError{Op: "write", Key: key, Err: err}
	}
	if err := writeAtomic(s.path(key), sealed); err != nil {
		return &credentials.StoreError{Op: "write", Key: key, Err: err}
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key string) (string, bool, error) {
	if err := credentials.ValidateKey(key); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, &credentials.StoreError{Op: "read", Key: key, Err: err}
	}
	sealed, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &credentials.StoreError{Op: "read", Key: key, Err: err}
	}
	plain, err := s.sealer.Open(key, sealed)
	if err != nil {
		return "", false, &credentials.StoreError{Op: "read", Key: key, Err: fmt.Errorf("%w: %w", apperrors.ErrCorruptRecord, err)}
	}
	return string(plain), true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := credentials.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &credentials.StoreError{Op: "delete", Key: key, Err: err}
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &credentials.StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+extension)
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) < credentials.SaltLength {
			return nil, apperrors.Wrapf(apperrors.ErrMissingKeyData, "[filestore] salt file %s", path)
		}
		return salt, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Wrapf(err, "[filestore] reading salt")
	}
	salt, err = credentials.NewSalt()
	if err != nil {
		return nil, apperrors.Wrapf(err, "[filestore] generating salt")
	}
	if err := writeAtomic(path, salt); err != nil {
		return nil, apperrors.Wrapf(err, "[filestore] writing salt")
	}
	return salt, nil
}

// writeAtomic replaces path via a synced temp file and rename.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
