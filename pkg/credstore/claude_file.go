//go:build !darwin

package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// fileClaudeStore backs ClaudeStore with the CLI's credentials file, a JSON
// document of the form {"claudeAiOauth": {...}} that may carry other keys.
type fileClaudeStore struct {
	path   string
	logger zerolog.Logger
}

// DefaultPath returns the CLI's default credentials file location. Empty
// when the home directory cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", ".credentials.json")
}

// NewClaudeStore returns the store for this platform. An empty path uses the
// CLI's default location, ~/.claude/.credentials.json.
func NewClaudeStore(path string, logger zerolog.Logger) (ClaudeStore, error) {
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return nil, fmt.Errorf("resolve home directory for claude credentials path")
		}
	}
	return &fileClaudeStore{
		path:   path,
		logger: logger.With().Str("component", "credstore.claude").Logger(),
	}, nil
}

func (s *fileClaudeStore) Load(ctx context.Context) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read claude credentials: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse claude credentials %s: %w", s.path, err)
	}
	raw, ok := doc[oauthKey]
	if !ok {
		return nil, ErrNotFound
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parse %s entry: %w", oauthKey, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s entry: %w", oauthKey, err)
	}
	return &creds, nil
}

func (s *fileClaudeStore) Save(ctx context.Context, creds *Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	// Keep any keys besides the OAuth entry that the CLI stored alongside it.
	doc := map[string]json.RawMessage{}
	if data, err := os.ReadFile(s.path); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			s.logger.Warn().
				Str("path", s.path).
				Err(err).
				Msg("Existing credentials file is not valid JSON, rewriting")
			doc = map[string]json.RawMessage{}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read claude credentials: %w", err)
	}

	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	doc[oauthKey] = raw

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal credentials document: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}

	s.logger.Debug().
		Str("path", s.path).
		Time("expires_at", creds.Expiry()).
		Msg("Claude CLI credentials saved")
	return nil
}
