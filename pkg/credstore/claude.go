package credstore

import "context"

// oauthKey is the key the Claude CLI uses for the OAuth document inside its
// credential store.
const oauthKey = "claudeAiOauth"

// ClaudeStore reads and writes the Claude CLI's own credential store. The
// backing location is platform specific: a JSON file under ~/.claude on
// Linux, the login keychain on macOS.
type ClaudeStore interface {
	// Load returns the OAuth credentials from the CLI store, or ErrNotFound
	// when the store has no entry.
	Load(ctx context.Context) (*Credentials, error)
	// Save writes the OAuth credentials into the CLI store, preserving any
	// unrelated keys the store already holds.
	Save(ctx context.Context, creds *Credentials) error
}
