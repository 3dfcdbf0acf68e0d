package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, 5*time.Minute, cfg.Stores.RefreshMargin)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		// Create a test config file
		testConfig := `{
			"stores": {
				"profile_path": "/tmp/oauth.json",
				"refresh_margin": 600000000000
			},
			"runner": {
				"model": "sonnet",
				"timeout": 120000000000
			},
			"logging": {
				"level": "debug"
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "/tmp/oauth.json", cfg.Stores.ProfilePath)
		assert.Equal(t, 10*time.Minute, cfg.Stores.RefreshMargin)
		assert.Equal(t, "sonnet", cfg.Runner.Model)
		assert.Equal(t, 2*time.Minute, cfg.Runner.Timeout)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"runner": {
				"model": "sonnet"
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.Stores.ProfilePath)
		assert.NotEmpty(t, cfg.Runner.SessionsPath)
		assert.NotEmpty(t, cfg.Logging.File)
	})

	t.Run("environment variable overrides file value", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"logging": {
				"level": "info"
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		t.Setenv("SELARAS_LOGGING_LEVEL", "error")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "error", cfg.Logging.Level)
	})

	t.Run("environment variable overrides default without file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		t.Setenv("SELARAS_RUNNER_MODEL", "opus")
		t.Setenv("SELARAS_LOGGING_LEVEL", "debug")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "opus", cfg.Runner.Model)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")

		err := os.WriteFile(configPath, []byte("invalid json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()

		assert.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"logging": {
				"level": "loud"
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()

		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.Runner.Model = "sonnet"
		cfg.Stores.ProfilePath = "/tmp/oauth.json"

		loader := NewLoader(configPath)
		err := loader.Save(cfg)

		require.NoError(t, err)

		// Verify file was created
		_, err = os.Stat(configPath)
		assert.NoError(t, err)

		// Load and verify
		loader2 := NewLoader(configPath)
		loadedCfg, err := loader2.Load()
		require.NoError(t, err)
		assert.Equal(t, "sonnet", loadedCfg.Runner.Model)
		assert.Equal(t, "/tmp/oauth.json", loadedCfg.Stores.ProfilePath)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		cfg := DefaultConfig()

		loader := NewLoader(configPath)
		err := loader.Save(cfg)

		require.NoError(t, err)

		// Verify directory was created
		_, err = os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		path := loader.GetConfigPath()
		assert.Equal(t, "/custom/path/config.json", path)
	})

	t.Run("default path", func(t *testing.T) {
		loader := NewLoader("")
		path := loader.GetConfigPath()
		assert.NotEmpty(t, path)
		assert.Contains(t, path, ".selaras")
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("negative refresh margin", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Stores.RefreshMargin = -time.Minute
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero runner timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Runner.Timeout = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad permission mode", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Runner.PermissionMode = "yolo"
		assert.Error(t, cfg.Validate())
	})

	t.Run("metrics enabled without listen address", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = ""
		assert.Error(t, cfg.Validate())
	})
}
