package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gosimple/slug"
)

// FileStore persists each key as its own file inside a directory, writing
// through a temp file + rename so a crash mid-write never corrupts existing
// state — the same write-then-rename discipline a durable key-value store needs, ported
// from a single flat file to one-file-per-key so concurrent writers don't
// contend on an entire blob.
type FileStore struct {
	dir   string
	mutex sync.Mutex
}

// NewFileStore creates (if needed) a storage directory named after a
// slugified version of name, rooted at baseDir.
func NewFileStore(baseDir, name string) (*FileStore, error) {
	dir := filepath.Join(baseDir, slug.Make(name))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("db: create storage dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, slug.Make(key))
}

// Get reads the value stored under key.
func (s *FileStore) Get(key string) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: read %q: %w", key, err)
	}
	return b, nil
}

// Set atomically replaces the value stored under key: write a temp file in
// the same directory, then rename over the destination.
func (s *FileStore) Set(key string, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tmp, err := os.CreateTemp(s.dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("db: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("db: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("db: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("db: rename temp file: %w", err)
	}
	return nil
}

// Delete removes the value stored under key, tolerating absence.
func (s *FileStore) Delete(key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("db: delete %q: %w", key, err)
	}
	return nil
}

// KeysWithPrefix is a best-effort scan; since keys are slugified on disk,
// this relies on the prefix also being slug-safe.
func (s *FileStore) KeysWithPrefix(prefix string) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("db: list dir: %w", err)
	}

	slugPrefix := slug.Make(prefix)
	var keys []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "tmp-") {
			continue
		}
		if strings.HasPrefix(e.Name(), slugPrefix) {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}
