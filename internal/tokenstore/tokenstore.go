// Package tokenstore persists the identity provider's session token so a
// signed-in identity survives process restarts.
package tokenstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/qsmate/internal/errors"
)

// Store holds at most one opaque token. Load returns errors.ErrNotFound when
// nothing has been saved.
type Store interface {
	Load() ([]byte, error)
	Save(token []byte) error
	Clear() error
}

// FileStore keeps the token in a single file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fs *FileStore) Load() ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[FileStore Load] %w", err)
	}
	return data, nil
}

// Save writes to a temporary file and renames it over the target so a crash
// never leaves a truncated token behind.
func (fs *FileStore) Save(token []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return fmt.Errorf("[FileStore Save] mkdir: %w", err)
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, token, 0o600); err != nil {
		return fmt.Errorf("[FileStore Save] write: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("[FileStore Save] rename: %w", err)
	}
	return nil
}

func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("[FileStore Clear] %w", err)
	}
	return nil
}

// MemoryStore is a Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu    sync.Mutex
	token []byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (ms *MemoryStore) Load() ([]byte, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if len(ms.token) == 0 {
		return nil, errors.ErrNotFound
	}
	return append([]byte(nil), ms.token...), nil
}

func (ms *MemoryStore) Save(token []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.token = append([]byte(nil), token...)
	return nil
}

func (ms *MemoryStore) Clear() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.token = nil
	return nil
}
