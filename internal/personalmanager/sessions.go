package personalmanager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// SessionStore maps a conversation's external_conversation_id to the LLM
// CLI session id that resumes it, persisted atomically via write-tempfile-
// rename so a crash mid-write never corrupts the file (spec §4.3 step 5).
type SessionStore struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// LoadSessionStore reads path (if present) into memory; a missing file
// starts with an empty mapping.
func LoadSessionStore(path string) (*SessionStore, error) {
	s := &SessionStore{path: path, data: map[string]string{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the session id for a conversation, or "" if unknown.
func (s *SessionStore) Get(conversationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[conversationID]
}

// Set records a session id and persists the mapping atomically.
func (s *SessionStore) Set(conversationID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[conversationID] = sessionID
	return s.save()
}

// Discard removes a conversation's session mapping (used when the CLI
// reports the resumed session is lost) and persists the change.
func (s *SessionStore) Discard(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, conversationID)
	return s.save()
}

func (s *SessionStore) save() error {
	encoded, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".sessions-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}
