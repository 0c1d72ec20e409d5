package client

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
)

// PersistedSession is what survives a restart: the bearer token and the
// active tenant pointer, nothing else. Everything else is re-fetched.
type PersistedSession struct {
	Token    string `json:"token"`
	TenantID string `json:"current_tenant_id"`
}

// SessionStore persists the session across restarts. Implementations must
// treat Clear as idempotent. Load returns a zero PersistedSession when
// nothing is stored.
type SessionStore interface {
	Load() (PersistedSession, error)
	Save(PersistedSession) error
	Clear() error
}

// MemoryStore keeps the session in process memory. Intended for tests and
// short-lived tools.
type MemoryStore struct {
	mu      sync.Mutex
	session PersistedSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (PersistedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, nil
}

func (s *MemoryStore) Save(session PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = PersistedSession{}
	return nil
}

// FileStore persists the session as a JSON file, the CLI analogue of the
// dashboard's browser storage.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (PersistedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PersistedSession{}, nil
		}
		return PersistedSession{}, err
	}
	var session PersistedSession
	if err := json.Unmarshal(data, &session); err != nil {
		// A corrupt session file is equivalent to no session.
		return PersistedSession{}, nil
	}
	return session, nil
}

func (s *FileStore) Save(session PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
