package fakestore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-social-session/credentials"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store with per-key failure injection.
type FakeStore struct {
	values      map[string]string
	readErrs    map[string]error
	writeErrs   map[string]error
	deleteErrs  map[string]error
	reads       int
	writes      int
	deletedKeys []string
	lock        sync.RWMutex
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values:     make(map[string]string),
		readErrs:   make(map[string]error),
		writeErrs:  make(map[string]error),
		deleteErrs: make(map[string]error),
	}
}

func (fs *FakeStore) Write(_ context.Context, key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.writes++
	if err := fs.writeErrs[key]; err != nil {
		return &credentials.StoreError{Op: "write", Key: key, Err: err}
	}
	fs.values[key] = value
	return nil
}

func (fs *FakeStore) Read(_ context.Context, key string) (string, bool, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.reads++
	if err := fs.readErrs[key]; err != nil {
		return "", false, &credentials.StoreError{Op: "read", Key: key, Err: err}
	}
	v, ok := fs.values[key]
	return v, ok, nil
}

func (fs *FakeStore) Delete(_ context.Context, key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := fs.deleteErrs[key]; err != nil {
		return &credentials.StoreError{Op: "delete", Key: key, Err: err}
	}
	delete(fs.values, key)
	fs.deletedKeys = append(fs.deletedKeys, key)
	return nil
}

// Seed stores values directly, bypassing counters and failures.
func (fs *FakeStore) Seed(values map[string]string) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	for k, v := range values {
		fs.values[k] = v
	}
}

// Snapshot copies the stored values.
func (fs *FakeStore) Snapshot() map[string]string {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	out := make(map[string]string, len(fs.values))
	for k, v := range fs.values {
		out[k] = v
	}
	return out
}

func (fs *FakeStore) FailRead(key string, err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.readErrs[key] = err
}

func (fs *FakeStore) FailWrite(key string, err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.writeErrs[key] = err
}

func (fs *FakeStore) FailDelete(key string, err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.deleteErrs[key] = err
}

func (fs *FakeStore) Reads() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.reads
}

func (fs *FakeStore) Writes() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.writes
}

// DeletedKeys lists successful deletes in call order.
func (fs *FakeStore) DeletedKeys() []string {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return append([]string(nil), fs.deletedKeys...)
}
