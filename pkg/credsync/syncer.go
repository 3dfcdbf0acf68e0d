// Package credsync relays OAuth credentials between the tool's own profile
// store and the Claude CLI's credential store, refreshing tokens that are
// about to expire.
package credsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hanif/selaras/internal/observability"
	"github.com/hanif/selaras/pkg/credstore"
	"github.com/hanif/selaras/pkg/oauth"
)

// DefaultMargin is how far before expiry a token is considered due for
// refresh.
const DefaultMargin = 5 * time.Minute

// Syncer ties the two credential stores together with a token refresher.
type Syncer struct {
	profile   *credstore.ProfileStore
	claude    credstore.ClaudeStore
	refresher oauth.Refresher
	margin    time.Duration
	logger    zerolog.Logger
}

// New creates a Syncer. A zero margin uses DefaultMargin.
func New(profile *credstore.ProfileStore, claude credstore.ClaudeStore, refresher oauth.Refresher, margin time.Duration, logger zerolog.Logger) *Syncer {
	observability.EnsureRegistered()
	if margin <= 0 {
		margin = DefaultMargin
	}
	return &Syncer{
		profile:   profile,
		claude:    claude,
		refresher: refresher,
		margin:    margin,
		logger:    logger.With().Str("component", "credsync").Logger(),
	}
}

// SyncResult describes what a Sync pass did.
type SyncResult struct {
	Refreshed bool
	ExpiresAt time.Time
}

// Sync ensures the profile credentials are fresh and relays them into the
// Claude CLI store. If the profile store is empty it first imports from the
// CLI store. The profile store is persisted before the CLI store is touched,
// so a failed relay never loses a refreshed token.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	result, err := s.sync(ctx)
	observability.RecordSync(time.Since(start), err == nil)
	return result, err
}

func (s *Syncer) sync(ctx context.Context) (*SyncResult, error) {
	creds, err := s.profile.Load(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		s.logger.Info().Msg("Profile store is empty, importing from Claude CLI store")
		if _, impErr := s.Import(ctx); impErr != nil {
			return nil, fmt.Errorf("no profile credentials and import failed: %w", impErr)
		}
		creds, err = s.profile.Load(ctx)
	}
	if err != nil {
		return nil, err
	}

	result := &SyncResult{ExpiresAt: creds.Expiry()}
	if creds.ExpiresWithin(s.margin) {
		s.logger.Info().
			Time("expires_at", creds.Expiry()).
			Dur("margin", s.margin).
			Msg("Access token is due for refresh")

		fresh, err := s.refresher.Refresh(ctx, creds)
		observability.RecordRefresh(err == nil)
		if err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}
		if err := s.profile.Save(ctx, fresh); err != nil {
			return nil, fmt.Errorf("persist refreshed credentials: %w", err)
		}
		creds = fresh
		result.Refreshed = true
		result.ExpiresAt = creds.Expiry()
	}

	if err := s.claude.Save(ctx, creds); err != nil {
		return result, fmt.Errorf("relay credentials to claude store: %w", err)
	}

	s.logger.Info().
		Bool("refreshed", result.Refreshed).
		Time("expires_at", result.ExpiresAt).
		Msg("Credentials synced")
	return result, nil
}

// ImportResult describes what an Import pass did.
type ImportResult struct {
	Imported  bool
	ExpiresAt time.Time
}

// Import pulls credentials out of the Claude CLI store into the profile
// store, typically after a manual `claude login`. The import is skipped when
// the profile copy has a strictly later expiry, so a stale CLI store can
// never downgrade the profile.
func (s *Syncer) Import(ctx context.Context) (res *ImportResult, err error) {
	defer func() { observability.RecordImport(err == nil) }()

	incoming, err := s.claude.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load claude store: %w", err)
	}

	existing, err := s.profile.Load(ctx)
	if err != nil && !errors.Is(err, credstore.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.ExpiresAt > incoming.ExpiresAt {
		s.logger.Info().
			Time("profile_expires_at", existing.Expiry()).
			Time("claude_expires_at", incoming.Expiry()).
			Msg("Profile credentials are newer, skipping import")
		return &ImportResult{Imported: false, ExpiresAt: existing.Expiry()}, nil
	}

	if err := s.profile.Save(ctx, incoming); err != nil {
		return nil, fmt.Errorf("persist imported credentials: %w", err)
	}

	s.logger.Info().
		Time("expires_at", incoming.Expiry()).
		Msg("Credentials imported from Claude CLI store")
	return &ImportResult{Imported: true, ExpiresAt: incoming.Expiry()}, nil
}

// StoreStatus is the state of one credential store.
type StoreStatus struct {
	Present   bool      `json:"present"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Expired   bool      `json:"expired,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Status reports the state of both stores without modifying either.
type Status struct {
	Profile StoreStatus `json:"profile"`
	Claude  StoreStatus `json:"claude"`
}

// Status inspects both stores.
func (s *Syncer) Status(ctx context.Context) (*Status, error) {
	st := &Status{}
	st.Profile = s.storeStatus(s.profile.Load(ctx))
	st.Claude = s.storeStatus(s.claude.Load(ctx))
	return st, nil
}

func (s *Syncer) storeStatus(creds *credstore.Credentials, err error) StoreStatus {
	switch {
	case errors.Is(err, credstore.ErrNotFound):
		return StoreStatus{Present: false}
	case err != nil:
		return StoreStatus{Present: false, Error: err.Error()}
	default:
		return StoreStatus{
			Present:   true,
			ExpiresAt: creds.Expiry(),
			Expired:   creds.Expired(),
		}
	}
}
