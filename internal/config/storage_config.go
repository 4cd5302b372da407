package config

import "strings"

const (
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"
)

type StorageConfig interface {
	GetStoreBackend() string
	GetStorePassphrase() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetStoreBackend returns STORE_BACKEND lower-cased. Unknown values are
// passed through for the caller to reject.
func (Storage) GetStoreBackend() string {
	return strings.ToLower(strings.TrimSpace(GetEnv("STORE_BACKEND", StoreBackendFile)))
}

// GetStorePassphrase seeds the credential encryption key. No default: the
// CLI refuses to open a store without one.
func (Storage) GetStorePassphrase() string {
	return GetEnv("STORE_PASSPHRASE", "")
}
