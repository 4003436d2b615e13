// Package tabstate keeps small key/value state scoped to one terminal tab.
//
// A tab is identified by a scope string (by default the parent shell's pid),
// so reopening the client from the same shell continues where it left off
// while other shells start fresh.
package tabstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// KeyCurrentChat holds the server id of the conversation open in this tab.
const KeyCurrentChat = "current_chat_id"

// Store is a string key/value map that survives process restarts within a scope.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// FileStore persists one YAML map per scope under dir.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns the store for scope under dir.
func NewFileStore(dir, scope string) *FileStore {
	return &FileStore{path: filepath.Join(dir, sanitizeScope(scope)+".yaml")}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals, err := s.load()
	if err != nil {
		return "", false
	}
	v, ok := vals[key]
	return v, ok && v != ""
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals, err := s.load()
	if err != nil {
		vals = map[string]string{}
	}
	vals[key] = value
	return s.save(vals)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals, err := s.load()
	if err != nil {
		return nil
	}
	if _, ok := vals[key]; !ok {
		return nil
	}
	delete(vals, key)
	if len(vals) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove tab state: %w", err)
		}
		return nil
	}
	return s.save(vals)
}

// load reads the map. Caller must hold mu.
func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	vals := map[string]string{}
	if err := yaml.Unmarshal(data, &vals); err != nil {
		return nil, fmt.Errorf("parse tab state: %w", err)
	}
	return vals, nil
}

// save writes the map. Caller must hold mu.
func (s *FileStore) save(vals map[string]string) error {
	data, err := yaml.Marshal(vals)
	if err != nil {
		return fmt.Errorf("marshal tab state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create tab state dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write tab state: %w", err)
	}
	return nil
}

func sanitizeScope(scope string) string {
	scope = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, scope)
	if scope == "" {
		return "default"
	}
	return scope
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	vals map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vals: map[string]string{}}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vals[key]
	return v, ok && v != ""
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = value
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vals, key)
	return nil
}
