package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AllowlistStore persists per-provider sender allow-lists in a JSON file.
// Read re-reads the file on every call (read-through, no caching) so entries
// added by the pairing CLI while the monitor runs take effect on the next event.
type AllowlistStore struct {
	path string
	mu   sync.Mutex
}

// NewAllowlistStore creates a file-backed allowlist store at path.
func NewAllowlistStore(path string) *AllowlistStore {
	return &AllowlistStore{path: path}
}

func (s *AllowlistStore) load() (map[string][]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]string{}, nil
		}
		return nil, fmt.Errorf("read allowlist store: %w", err)
	}
	var m map[string][]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse allowlist store: %w", err)
	}
	if m == nil {
		m = map[string][]string{}
	}
	return m, nil
}

func (s *AllowlistStore) save(m map[string][]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal allowlist store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create allowlist store dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write allowlist store: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Read returns the persisted allow-list for a provider.
func (s *AllowlistStore) Read(_ context.Context, provider string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	return m[provider], nil
}

// Add appends an entry to a provider's allow-list if not already present.
func (s *AllowlistStore) Add(_ context.Context, provider, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	for _, e := range m[provider] {
		if e == entry {
			return nil
		}
	}
	m[provider] = append(m[provider], entry)
	return s.save(m)
}

// Remove deletes an entry from a provider's allow-list.
func (s *AllowlistStore) Remove(_ context.Context, provider, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	list := m[provider]
	out := list[:0]
	for _, e := range list {
		if e != entry {
			out = append(out, e)
		}
	}
	if len(out) == len(list) {
		return nil
	}
	m[provider] = out
	return s.save(m)
}
