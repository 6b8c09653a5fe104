// Package store provides a small durable key-value abstraction so the
// progress and cache layers stay storage-backend-agnostic.
package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ApenasGabs/queroAulas/internal/errs"
)

// KV is a durable key-value store for small JSON payloads.
type KV interface {
	// Load returns the value for key, or ok=false if absent.
	Load(key string) (data []byte, ok bool, err error)
	// Save durably writes the value for key.
	Save(key string, data []byte) error
	// Delete removes key. Deleting an absent key succeeds.
	Delete(key string) error
}

// FileKV stores each key as a file under a root directory.
// Writes are atomic (temp file then rename).
type FileKV struct {
	dir string
	mu  sync.Mutex
}

// NewFileKV creates the backing directory if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errs.Wrap(errs.KindStorage, "store.NewFileKV", err)
	}
	return &FileKV{dir: dir}, nil
}

func (s *FileKV) path(key string) string {
	// Keys may carry namespace separators; flatten them for the filesystem.
	name := strings.ReplaceAll(key, "/", "_") + ".json"
	return filepath.Join(s.dir, name)
}

// Load implements KV.
func (s *FileKV) Load(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errs.Wrap(errs.KindStorage, "store.Load", err)
	}
	return data, true, nil
}

// Save implements KV.
func (s *FileKV) Save(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errs.Wrap(errs.KindStorage, "store.Save", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindStorage, "store.Save", err)
	}
	return nil
}

// Delete implements KV.
func (s *FileKV) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindStorage, "store.Delete", err)
	}
	return nil
}

// MemKV is an in-memory KV for tests.
type MemKV struct {
	mu   sync.Mutex
	data map[string][]byte

	// SaveErr, when set, is returned by every Save call.
	SaveErr error
}

// NewMemKV creates an empty in-memory store.
func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string][]byte)}
}

// Load implements KV.
func (s *MemKV) Load(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

// Save implements KV.
func (s *MemKV) Save(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[key] = cp
	return nil
}

// Delete implements KV.
func (s *MemKV) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys returns all stored keys (test helper).
func (s *MemKV) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
