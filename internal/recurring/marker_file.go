package recurring

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileMarkerStore keeps markers in a small YAML file, for clients that run
// outside the server.
type FileMarkerStore struct {
	path string
	mu   sync.Mutex
}

// NewFileMarkerStore returns a store backed by path. The file is created on first Set.
func NewFileMarkerStore(path string) *FileMarkerStore {
	return &FileMarkerStore{path: path}
}

// Get returns the value stored under key.
func (s *FileMarkerStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// Set stores value under key, rewriting the file atomically.
func (s *FileMarkerStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	m[key] = value

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marker file: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("marker file: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".markers-*")
	if err != nil {
		return fmt.Errorf("marker file: temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("marker file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("marker file: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("marker file: rename: %w", err)
	}
	return nil
}

func (s *FileMarkerStore) load() (map[string]string, error) {
	m := map[string]string{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("marker file: read: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("marker file: decode %s: %w", s.path, err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}
