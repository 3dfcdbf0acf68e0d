package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// ProfileStore reads and writes credentials as a plain JSON document on
// disk. It is the store this tool owns, as opposed to the Claude CLI's own
// store which ClaudeStore wraps.
type ProfileStore struct {
	path   string
	logger zerolog.Logger
}

// NewProfileStore creates a store backed by the given file path.
func NewProfileStore(path string, logger zerolog.Logger) *ProfileStore {
	return &ProfileStore{
		path:   path,
		logger: logger.With().Str("component", "credstore.profile").Logger(),
	}
}

// Path returns the backing file path.
func (s *ProfileStore) Path() string {
	return s.path
}

// Load reads the stored credentials. Returns ErrNotFound when the file does
// not exist.
func (s *ProfileStore) Load(ctx context.Context) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials file %s: %w", s.path, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials in %s: %w", s.path, err)
	}
	return &creds, nil
}

// Save writes the credentials atomically: the document is written to a
// temporary file in the same directory and renamed over the target.
func (s *ProfileStore) Save(ctx context.Context, creds *Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}

	s.logger.Debug().
		Str("path", s.path).
		Time("expires_at", creds.Expiry()).
		Msg("Credentials saved")
	return nil
}

// writeFileAtomic writes data to path via a temp file and rename, creating
// the parent directory as needed. File mode 0600, directories 0700.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
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
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}
