// Package sqlitestore keeps sealed credentials in a single SQLite table.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/jrsteele09/go-social-session/credentials"
	apperrors "github.com/jrsteele09/go-social-session/internal/errors"
)

const (
	dbFile = "credentials.db"

	schema = `
CREATE TABLE IF NOT EXISTS secrets (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS store_meta (
	name  TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`
)

var _ credentials.Store = (*Store)(nil)

// Store is a credentials.Store over SQLite.
type Store struct {
	db     *sql.DB
	path   string
	sealer *credentials.Sealer
	now    func() time.Time
	closed atomic.Bool
}

// Open opens <dir>/credentials.db, deriving the sealing key from passphrase
// and a salt kept in the database itself.
func Open(ctx context.Context, dir, passphrase string) (*Store, error) {
	s, err := open(ctx, dir)
	if err != nil {
		return nil, err
	}
	salt, err := s.loadOrCreateSalt(ctx)
	if err != nil {
		s.db.Close()
		return nil, err
	}
	key, err := credentials.DeriveKey(passphrase, salt)
	if err != nil {
		s.db.Close()
		return nil, apperrors.Wrapf(err, "[sqlitestore.Open] deriving key")
	}
	if s.sealer, err = credentials.NewSealer(key); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

// OpenWithKey opens the store with a raw 32 byte key.
func OpenWithKey(ctx context.Context, dir string, key []byte) (*Store, error) {
	sealer, err := credentials.NewSealer(key)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[sqlitestore.OpenWithKey] sealer")
	}
	s, err := open(ctx, dir)
	if err != nil {
		return nil, err
	}
	s.sealer = sealer
	return s, nil
}

func open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperrors.Wrapf(err, "[sqlitestore] creating %s", dir)
	}
	dbPath := filepath.Join(dir, dbFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.Wrapf(err, "[sqlitestore] opening database")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.Wrapf(err, "[sqlitestore] creating schema")
	}
	return &Store{db: db, path: dbPath, now: time.Now}, nil
}

// Close closes the database connection. Later calls to Write, Read and
// Delete fail with ErrStoreClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) check(op, key string) error {
	if err := credentials.ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return &credentials.StoreError{Op: op, Key: key, Err: apperrors.ErrStoreClosed}
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Write(ctx context.Context, key, value string) error {
	if err := s.check("write", key); err != nil {
		return err
	}
	sealed, err := s.sealer.Seal(key, []byte(value))
	if err != nil {
		return &credentials.StoreError{Op: "write", Key: key, Err: err}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secrets (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, sealed, s.now().UnixMilli())
	if err != nil {
		return &credentials.StoreError{Op: "write", Key: key, Err: err}
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key string) (string, bool, error) {
	if err := s.check("read", key); err != nil {
		return "", false, err
	}
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
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
	if err := s.check("delete", key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key); err != nil {
		return &credentials.StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *Store) loadOrCreateSalt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE name = 'salt'`).Scan(&salt)
	if err == nil {
		if len(salt) < credentials.SaltLength {
			return nil, apperrors.Wrapf(apperrors.ErrMissingKeyData, "[sqlitestore] salt")
		}
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrapf(err, "[sqlitestore] reading salt")
	}
	if salt, err = credentials.NewSalt(); err != nil {
		return nil, apperrors.Wrapf(err, "[sqlitestore] generating salt")
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO store_meta (name, value) VALUES ('salt', ?)`, salt); err != nil {
		return nil, apperrors.Wrapf(err, "[sqlitestore] writing salt")
	}
	return salt, nil
}
