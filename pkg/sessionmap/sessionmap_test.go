package sessionmap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "sessions.json"), zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "project-alpha", false},
		{"valid with dots", "team.project", false},
		{"empty", "", true},
		{"dotdot", "../escape", true},
		{"forward slash", "a/b", true},
		{"backslash", `a\b`, true},
		{"null byte", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	t.Run("get missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		id := uuid.NewString()
		require.NoError(t, store.Put(ctx, "conv-1", id))

		entry, err := store.Get(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, id, entry.SessionID)
		assert.WithinDuration(t, time.Now(), entry.UpdatedAt, 5*time.Second)
	})

	t.Run("put replaces existing binding", func(t *testing.T) {
		first := uuid.NewString()
		second := uuid.NewString()
		require.NoError(t, store.Put(ctx, "conv-2", first))
		require.NoError(t, store.Put(ctx, "conv-2", second))

		entry, err := store.Get(ctx, "conv-2")
		require.NoError(t, err)
		assert.Equal(t, second, entry.SessionID)
	})

	t.Run("put rejects invalid session id", func(t *testing.T) {
		err := store.Put(ctx, "conv-3", "not-a-uuid")
		assert.Error(t, err)
	})

	t.Run("survives reopen", func(t *testing.T) {
		id := uuid.NewString()
		require.NoError(t, store.Put(ctx, "conv-4", id))

		reopened, err := New(store.path, zerolog.Nop())
		require.NoError(t, err)

		entry, err := reopened.Get(ctx, "conv-4")
		require.NoError(t, err)
		assert.Equal(t, id, entry.SessionID)
	})
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "conv", uuid.NewString()))
	require.NoError(t, store.Delete(ctx, "conv"))

	_, err := store.Get(ctx, "conv")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an unbound key is not an error
	assert.NoError(t, store.Delete(ctx, "conv"))
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, store.Put(ctx, "older", uuid.NewString()))
	require.NoError(t, store.Put(ctx, "newer", uuid.NewString()))

	entries, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Most recently updated first
	assert.False(t, entries[0].UpdatedAt.Before(entries[1].UpdatedAt))
}

func TestStorePurge(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "fresh", uuid.NewString()))
	require.NoError(t, store.Put(ctx, "stale", uuid.NewString()))

	// Backdate the stale entry directly through the map file
	m, err := store.read()
	require.NoError(t, err)
	stale := m.Sessions["stale"]
	stale.UpdatedAt = time.Now().Add(-48 * time.Hour)
	m.Sessions["stale"] = stale
	require.NoError(t, store.write(m))

	removed, err := store.Purge(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}
