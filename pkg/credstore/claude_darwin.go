//go:build darwin

package credstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"os/user"
	"strings"

	"github.com/rs/zerolog"
)

// keychainService is the service name the Claude CLI registers its
// credentials under in the login keychain.
const keychainService = "Claude Code-credentials"

// keychainClaudeStore backs ClaudeStore with the macOS login keychain via
// the security(1) tool, matching how the CLI itself stores credentials.
type keychainClaudeStore struct {
	service string
	account string
	logger  zerolog.Logger
}

// DefaultPath returns the CLI's default credentials file location. On macOS
// credentials live in the keychain, so there is no file to point at.
func DefaultPath() string {
	return ""
}

// NewClaudeStore returns the store for this platform. The path argument is
// ignored on macOS; credentials live in the keychain.
func NewClaudeStore(path string, logger zerolog.Logger) (ClaudeStore, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("resolve current user: %w", err)
	}
	return &keychainClaudeStore{
		service: keychainService,
		account: u.Username,
		logger:  logger.With().Str("component", "credstore.claude").Logger(),
	}, nil
}

func (s *keychainClaudeStore) Load(ctx context.Context) (*Credentials, error) {
	cmd := exec.CommandContext(ctx, "security",
		"find-generic-password",
		"-s", s.service,
		"-a", s.account,
		"-w",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "could not be found") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read keychain item: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &doc); err != nil {
		return nil, fmt.Errorf("parse keychain item: %w", err)
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

func (s *keychainClaudeStore) Save(ctx context.Context, creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	// Preserve sibling keys from the existing item, same as the file store.
	doc := map[string]json.RawMessage{}
	if raw, err := s.loadRaw(ctx); err == nil {
		if err := json.Unmarshal(raw, &doc); err != nil {
			doc = map[string]json.RawMessage{}
		}
	}

	rawCreds, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	doc[oauthKey] = rawCreds

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal credentials document: %w", err)
	}

	cmd := exec.CommandContext(ctx, "security",
		"add-generic-password",
		"-U",
		"-s", s.service,
		"-a", s.account,
		"-w", string(data),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("write keychain item: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	s.logger.Debug().
		Str("service", s.service).
		Time("expires_at", creds.Expiry()).
		Msg("Claude CLI credentials saved")
	return nil
}

func (s *keychainClaudeStore) loadRaw(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "security",
		"find-generic-password",
		"-s", s.service,
		"-a", s.account,
		"-w",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(out), nil
}
