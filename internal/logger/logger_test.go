package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileLogger(t *testing.T, cfg Config) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "selaras.log")
	cfg.File = path
	lg, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { lg.Close() })
	return lg, path
}

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		lg, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		defer lg.Close()
		assert.Equal(t, zerolog.InfoLevel, lg.GetZerolog().GetLevel())
	})

	t.Run("file output creates the log file", func(t *testing.T) {
		lg, path := newFileLogger(t, Config{Level: "debug"})

		lg.Info().Str("component", "credsync").Msg("sync complete")
		require.NoError(t, lg.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "sync complete")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		lg, err := New(Config{Level: "shouting", Console: true})
		require.NoError(t, err)
		defer lg.Close()
		assert.Equal(t, zerolog.InfoLevel, lg.GetZerolog().GetLevel())
	})

	t.Run("redaction scrubs tokens end to end", func(t *testing.T) {
		lg, path := newFileLogger(t, Config{Level: "info", Redaction: true})
		require.NotNil(t, lg.redactor)

		lg.Info().Str("token", "sk-ant-REDACTED").Msg("refreshing")
		require.NoError(t, lg.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "verysecretvalue")
		assert.Contains(t, string(data), "refreshing")
	})
}

func TestLoggerLevelsAndChildren(t *testing.T) {
	lg, path := newFileLogger(t, Config{Level: "debug"})

	lg.Debug().Msg("inspecting store")
	lg.Info().Msg("store loaded")
	lg.Warn().Msg("token close to expiry")
	lg.Error().Msg("refresh failed")

	child := lg.With().Str("component", "runner").Logger()
	child.Info().Msg("invoking cli")

	require.NoError(t, lg.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, want := range []string{
		"inspecting store",
		"token close to expiry",
		"refresh failed",
		`"component":"runner"`,
	} {
		assert.Contains(t, string(data), want)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 20, cfg.MaxSize)
	assert.Equal(t, 14, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}
