package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const fileExt = ".json"

// Store keeps rendered API responses on disk, one file per request key.
type Store struct {
	dir    string
	maxAge time.Duration

	// mu orders Clear against WriteIfCurrent; generation counts Clears.
	mu         sync.Mutex
	generation uint64
}

func New(dir string, maxAge time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir, maxAge: maxAge}, nil
}

// Key identifies a request by path and raw query.
func Key(path, rawQuery string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(path+"?"+rawQuery))
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

// Read returns the cached body for key unless it is missing or older than
// maxAge.
func (s *Store) Read(key string) ([]byte, bool) {
	p := s.path(key)

	info, err := os.Stat(p)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > s.maxAge {
		return nil, false
	}

	body, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return body, true
}

// Write stores body under key. The file is renamed into place so readers
// never see a partial body.
func (s *Store) Write(key string, body []byte) error {
	tmp, err := os.CreateTemp(s.dir, key+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(key))
}

// Generation changes every time the store is cleared.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// WriteIfCurrent stores body only if no Clear happened since gen was read,
// so a response rendered before a mutation never outlives it.
func (s *Store) WriteIfCurrent(gen uint64, key string, body []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false, nil
	}
	return true, s.Write(key, body)
}

// Clear removes every cached response.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.removeIf(func(os.FileInfo) bool { return true })
}

// ClearOld removes cached responses older than maxAge.
func (s *Store) ClearOld() error {
	return s.removeIf(func(info os.FileInfo) bool {
		return time.Since(info.ModTime()) > s.maxAge
	})
}

func (s *Store) removeIf(match func(os.FileInfo) bool) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if match(info) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}
