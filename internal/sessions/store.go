// Package sessions persists each persona's rolling conversation history as
// one JSON file under the sessions directory.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/helpinghand/relay/internal/completion"
)

// MaxEntries bounds each persona's persisted history.
const MaxEntries = 50

// Session is one persona's stored conversation log.
type Session struct {
	Agent    string               `json:"agent"`
	Updated  time.Time            `json:"updated"`
	Messages []completion.Message `json:"messages"`
}

// Store manages per-persona session files. Concurrent responses for the
// same persona serialize on that persona's lock, so the file's
// read-modify-write never interleaves; different personas do not contend.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store over the sessions directory, creating it if
// needed.
func NewStore(dir string) *Store {
	os.MkdirAll(dir, 0755)
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}
}

// Lock returns the mutex serializing responses for one persona.
func (s *Store) Lock(personaKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(personaKey)
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// History loads a persona's stored messages. A missing or corrupt file
// yields an empty history.
func (s *Store) History(personaKey string) []completion.Message {
	data, err := os.ReadFile(s.path(personaKey))
	if err != nil {
		return nil
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil
	}
	return sess.Messages
}

// Save persists a persona's history, trimmed to the most recent MaxEntries,
// atomically (temp file then rename).
func (s *Store) Save(personaKey string, messages []completion.Message) error {
	if len(messages) > MaxEntries {
		messages = messages[len(messages)-MaxEntries:]
	}
	sess := Session{
		Agent:    strings.ToLower(personaKey),
		Updated:  time.Now(),
		Messages: messages,
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, s.path(personaKey)); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// Delete removes a persona's session file.
func (s *Store) Delete(personaKey string) error {
	if err := os.Remove(s.path(personaKey)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Count returns the number of stored messages for a persona.
func (s *Store) Count(personaKey string) int {
	return len(s.History(personaKey))
}

// List returns the persona keys with stored sessions.
func (s *Store) List() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), ".json"))
	}
	return keys
}

func (s *Store) path(personaKey string) string {
	key := strings.ToLower(personaKey)
	// Persona keys come from definition filenames, but never trust them as
	// path components.
	key = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, key)
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", key))
}
