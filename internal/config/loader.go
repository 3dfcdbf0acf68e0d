package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	cfg := DefaultConfig()

	// Setup viper
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Read environment variables. The replacer maps nested keys to env
	// names, e.g. logging.level -> SELARAS_LOGGING_LEVEL, and the defaults
	// below register every key so AutomaticEnv can see it.
	v.SetEnvPrefix("SELARAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	// Read config file if present; a missing file means defaults + env
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".selaras")
	}

	// Fill in data-dir-relative paths
	if cfg.Stores.ProfilePath == "" {
		cfg.Stores.ProfilePath = filepath.Join(cfg.DataDir, "credentials", "oauth.json")
	}
	if cfg.Runner.SessionsPath == "" {
		cfg.Runner.SessionsPath = filepath.Join(cfg.DataDir, "sessions.json")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "selaras.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every config key with viper so file values merge
// over defaults and env vars override both.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("stores.profile_path", cfg.Stores.ProfilePath)
	v.SetDefault("stores.claude_path", cfg.Stores.ClaudePath)
	v.SetDefault("stores.refresh_margin", cfg.Stores.RefreshMargin)
	v.SetDefault("oauth.token_url", cfg.OAuth.TokenURL)
	v.SetDefault("oauth.client_id", cfg.OAuth.ClientID)
	v.SetDefault("runner.cli_path", cfg.Runner.CLIPath)
	v.SetDefault("runner.timeout", cfg.Runner.Timeout)
	v.SetDefault("runner.work_dir", cfg.Runner.WorkDir)
	v.SetDefault("runner.model", cfg.Runner.Model)
	v.SetDefault("runner.system_prompt", cfg.Runner.SystemPrompt)
	v.SetDefault("runner.permission_mode", cfg.Runner.PermissionMode)
	v.SetDefault("runner.allowed_tools", cfg.Runner.AllowedTools)
	v.SetDefault("runner.sessions_path", cfg.Runner.SessionsPath)
	v.SetDefault("sync.interval", cfg.Sync.Interval)
	v.SetDefault("sync.watch_claude_store", cfg.Sync.WatchClaudeStore)
	v.SetDefault("sync.debounce", cfg.Sync.Debounce)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("data_dir", cfg.DataDir)
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Setup viper
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Set all config values (use canonical fields only)
	v.Set("stores", cfg.Stores)
	v.Set("oauth", cfg.OAuth)
	v.Set("runner", cfg.Runner)
	v.Set("sync", cfg.Sync)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("data_dir", cfg.DataDir)

	// Write config file
	if err := v.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".selaras", "selaras.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
