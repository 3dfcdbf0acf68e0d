// Package sessionmap persists the mapping from conversation keys to Claude
// CLI session ids, so repeated runs under the same key resume the same
// conversation.
package sessionmap

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
	"github.com/rs/zerolog"

	"github.com/hanif/selaras/internal/observability"
)

// ErrNotFound is returned when no session is mapped to a conversation key.
var ErrNotFound = fmt.Errorf("sessionmap: conversation not found")

// Entry is one conversation's session binding.
type Entry struct {
	SessionID string    `json:"sessionId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type mapFile struct {
	Sessions map[string]Entry `json:"sessions"`
}

// Store is a file-backed map of conversation key to session id. All
// operations rewrite the whole file atomically under a store-wide lock.
type Store struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

// New creates a store backed by the given file path. An empty path uses
// ~/.selaras/sessions.json.
func New(path string, logger zerolog.Logger) (*Store, error) {
	observability.EnsureRegistered()

	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".selaras", "sessions.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "sessionmap").Logger(),
	}, nil
}

// ValidateKey validates a conversation key for use in logs and the map file.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("conversation key cannot be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("conversation key cannot contain '..'")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("conversation key cannot contain path separators")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("conversation key cannot contain null bytes")
	}
	return nil
}

// Get returns the session bound to the conversation key.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return nil, err
	}
	entry, ok := m.Sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Put binds a session id to the conversation key, replacing any previous
// binding. The session id must be a valid UUID.
func (s *Store) Put(ctx context.Context, key, sessionID string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return fmt.Errorf("invalid session id %q: %w", sessionID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return err
	}
	m.Sessions[key] = Entry{SessionID: sessionID, UpdatedAt: time.Now().UTC()}
	if err := s.write(m); err != nil {
		return err
	}

	s.logger.Debug().
		Str("conversation", key).
		Str("session_id", sessionID).
		Msg("Session mapping stored")
	return nil
}

// Delete removes the binding for a conversation key. Removing a key that is
// not bound is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := m.Sessions[key]; !ok {
		return nil
	}
	delete(m.Sessions, key)
	return s.write(m)
}

// ListEntry pairs a conversation key with its binding, for listings.
type ListEntry struct {
	Key string
	Entry
}

// List returns all bindings sorted by most recently updated first.
func (s *Store) List(ctx context.Context) ([]ListEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]ListEntry, 0, len(m.Sessions))
	for key, entry := range m.Sessions {
		out = append(out, ListEntry{Key: key, Entry: entry})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Purge removes bindings not updated within maxAge and returns how many were
// dropped.
func (s *Store) Purge(ctx context.Context, maxAge time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, entry := range m.Sessions {
		if entry.UpdatedAt.Before(cutoff) {
			delete(m.Sessions, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.write(m); err != nil {
		return 0, err
	}

	s.logger.Info().
		Int("removed", removed).
		Dur("max_age", maxAge).
		Msg("Stale session mappings purged")
	return removed, nil
}

func (s *Store) read() (*mapFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &mapFile{Sessions: map[string]Entry{}}, nil
		}
		return nil, fmt.Errorf("read session map: %w", err)
	}

	var m mapFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse session map %s: %w", s.path, err)
	}
	if m.Sessions == nil {
		m.Sessions = map[string]Entry{}
	}
	return &m, nil
}

func (s *Store) write(m *mapFile) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session map: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	observability.SetSessionMappings(len(m.Sessions))
	return nil
}
