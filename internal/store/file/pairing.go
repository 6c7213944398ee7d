// Package file provides JSON-file-backed stores for standalone mode.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/sigclaw/internal/store"
)

type pairingEntry struct {
	Code      string            `json:"code"`
	Meta      store.PairingMeta `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type pairingFile struct {
	// provider → sender id → pending request
	Requests map[string]map[string]pairingEntry `json:"requests"`
}

// PairingStore persists pending pairing requests in a single JSON file.
type PairingStore struct {
	path string
	mu   sync.Mutex
}

// NewPairingStore creates a file-backed pairing store at path.
func NewPairingStore(path string) *PairingStore {
	return &PairingStore{path: path}
}

func (s *PairingStore) load() (*pairingFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &pairingFile{Requests: make(map[string]map[string]pairingEntry)}, nil
		}
		return nil, fmt.Errorf("read pairing store: %w", err)
	}
	var pf pairingFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse pairing store: %w", err)
	}
	if pf.Requests == nil {
		pf.Requests = make(map[string]map[string]pairingEntry)
	}
	return &pf, nil
}

func (s *PairingStore) save(pf *pairingFile) error {
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pairing store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create pairing store dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write pairing store: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// newPairingCode generates a short human-typable code.
func newPairingCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Upsert creates or returns the pending request for (provider, id).
func (s *PairingStore) Upsert(_ context.Context, provider, id string, meta store.PairingMeta) (store.PairingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return store.PairingRequest{}, err
	}

	byID := pf.Requests[provider]
	if byID == nil {
		byID = make(map[string]pairingEntry)
		pf.Requests[provider] = byID
	}

	if existing, ok := byID[id]; ok {
		return store.PairingRequest{
			Provider: provider, ID: id,
			Code: existing.Code, Created: false, CreatedAt: existing.CreatedAt,
		}, nil
	}

	entry := pairingEntry{Code: newPairingCode(), Meta: meta, CreatedAt: time.Now().UTC()}
	byID[id] = entry
	if err := s.save(pf); err != nil {
		return store.PairingRequest{}, err
	}

	return store.PairingRequest{
		Provider: provider, ID: id,
		Code: entry.Code, Created: true, CreatedAt: entry.CreatedAt,
	}, nil
}

// List returns all pending requests for a provider, oldest first.
func (s *PairingStore) List(_ context.Context, provider string) ([]store.PairingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return nil, err
	}

	var out []store.PairingRequest
	for id, e := range pf.Requests[provider] {
		out = append(out, store.PairingRequest{
			Provider: provider, ID: id, Code: e.Code, CreatedAt: e.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Approve resolves a pending request by code and returns the sender id.
func (s *PairingStore) Approve(_ context.Context, provider, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return "", err
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	for id, e := range pf.Requests[provider] {
		if e.Code == code {
			delete(pf.Requests[provider], id)
			if err := s.save(pf); err != nil {
				return "", err
			}
			return id, nil
		}
	}
	return "", fmt.Errorf("no pending pairing request with code %s", code)
}

// Delete removes a pending request without approving it.
func (s *PairingStore) Delete(_ context.Context, provider, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := pf.Requests[provider][id]; !ok {
		return nil
	}
	delete(pf.Requests[provider], id)
	return s.save(pf)
}
