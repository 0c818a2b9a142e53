// Package identity generates and persists the per-browser visitor identifier
// and the per-visitor conversation cursor. It is the widget-side analog of
// browser local storage: two keys, no expiry.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists the visitor id and the last-seen message id per visitor.
// Cursor returns 0 for unknown visitors; SetCursor must never move a cursor
// backwards (callers rely on monotonicity for the new-message affordance).
type Store interface {
	VisitorID() (string, error)
	SetVisitorID(id string) error
	Cursor(visitorID string) (int64, error)
	SetCursor(visitorID string, id int64) error
}

// EnsureVisitorID returns the stored visitor id, generating and persisting a
// new one on first use. The id embeds the storefront host so one backend can
// tell tenants' visitors apart in logs.
func EnsureVisitorID(s Store, host string) (string, error) {
	id, err := s.VisitorID()
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id, err = newVisitorID(host)
	if err != nil {
		return "", err
	}
	if err := s.SetVisitorID(id); err != nil {
		return "", err
	}
	return id, nil
}

func newVisitorID(host string) (string, error) {
	b := make([]byte, 5)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate visitor id: %w", err)
	}
	return fmt.Sprintf("%s_%s_%d", host, hex.EncodeToString(b), time.Now().UnixMilli()), nil
}

// MemStore is an in-memory Store for tests and ephemeral sessions.
type MemStore struct {
	mu      sync.Mutex
	visitor string
	cursors map[string]int64
}

func NewMemStore() *MemStore {
	return &MemStore{cursors: make(map[string]int64)}
}

func (s *MemStore) VisitorID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visitor, nil
}

func (s *MemStore) SetVisitorID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visitor = id
	return nil
}

func (s *MemStore) Cursor(visitorID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[visitorID], nil
}

func (s *MemStore) SetCursor(visitorID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id > s.cursors[visitorID] {
		s.cursors[visitorID] = id
	}
	return nil
}

// FileStore persists state as a small JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

type fileState struct {
	VisitorID string           `json:"visitor_id"`
	Cursors   map[string]int64 `json:"cursors"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) VisitorID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return "", err
	}
	return st.VisitorID, nil
}

func (s *FileStore) SetVisitorID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return err
	}
	st.VisitorID = id
	return s.save(st)
}

func (s *FileStore) Cursor(visitorID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return 0, err
	}
	return st.Cursors[visitorID], nil
}

func (s *FileStore) SetCursor(visitorID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return err
	}
	if id <= st.Cursors[visitorID] {
		return nil
	}
	st.Cursors[visitorID] = id
	return s.save(st)
}

func (s *FileStore) load() (*fileState, error) {
	st := &fileState{Cursors: make(map[string]int64)}
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read identity store: %w", err)
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("parse identity store: %w", err)
	}
	if st.Cursors == nil {
		st.Cursors = make(map[string]int64)
	}
	return st, nil
}

func (s *FileStore) save(st *fileState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode identity store: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create identity dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write identity store: %w", err)
	}
	return nil
}
