//go:build !darwin

package credstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClaudeStore(t *testing.T) (ClaudeStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".credentials.json")
	store, err := NewClaudeStore(path, zerolog.Nop())
	require.NoError(t, err)
	return store, path
}

func TestClaudeFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("load missing file", func(t *testing.T) {
		store, _ := newTestClaudeStore(t)

		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("load missing oauth entry", func(t *testing.T) {
		store, path := newTestClaudeStore(t)
		require.NoError(t, os.WriteFile(path, []byte(`{"other":{}}`), 0o600))

		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save and load round trip", func(t *testing.T) {
		store, path := newTestClaudeStore(t)

		creds := &Credentials{
			AccessToken:  "sk-ant-oat01-access",
			RefreshToken: "sk-ant-ort01-refresh",
			ExpiresAt:    1700000000000,
			Scopes:       []string{"user:inference", "user:profile"},
		}
		require.NoError(t, store.Save(ctx, creds))

		// The on-disk document wraps the credentials under claudeAiOauth.
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Contains(t, doc, "claudeAiOauth")

		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, creds, loaded)
	})

	t.Run("save preserves sibling keys", func(t *testing.T) {
		store, path := newTestClaudeStore(t)
		existing := `{"claudeAiOauth":{"accessToken":"old"},"somethingElse":{"keep":true}}`
		require.NoError(t, os.WriteFile(path, []byte(existing), 0o600))

		require.NoError(t, store.Save(ctx, &Credentials{AccessToken: "new"}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Contains(t, doc, "somethingElse")

		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "new", loaded.AccessToken)
	})

	t.Run("default path under home", func(t *testing.T) {
		path := DefaultPath()
		assert.Contains(t, path, filepath.Join(".claude", ".credentials.json"))
	})
}
