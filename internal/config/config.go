package config

import (
	"fmt"
	"time"
)

// Config represents the main Selaras configuration
type Config struct {
	// Credential stores
	Stores StoresConfig `json:"stores" mapstructure:"stores"`

	// OAuth token refresh
	OAuth OAuthConfig `json:"oauth" mapstructure:"oauth"`

	// Claude CLI invocation
	Runner RunnerConfig `json:"runner" mapstructure:"runner"`

	// Sync scheduling
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// StoresConfig holds the credential store locations
type StoresConfig struct {
	// ProfilePath is the tool's own credentials file. Defaults to
	// <data_dir>/credentials/oauth.json.
	ProfilePath string `json:"profile_path" mapstructure:"profile_path"`
	// ClaudePath is the Claude CLI credentials file. Empty uses the CLI's
	// default location; ignored on macOS where the keychain is used.
	ClaudePath string `json:"claude_path" mapstructure:"claude_path"`
	// RefreshMargin is how far before expiry a token is refreshed.
	RefreshMargin time.Duration `json:"refresh_margin" mapstructure:"refresh_margin"`
}

// OAuthConfig holds the token endpoint settings
type OAuthConfig struct {
	TokenURL string `json:"token_url" mapstructure:"token_url"`
	ClientID string `json:"client_id" mapstructure:"client_id"`
}

// RunnerConfig holds Claude CLI invocation settings
type RunnerConfig struct {
	CLIPath        string        `json:"cli_path" mapstructure:"cli_path"`
	Timeout        time.Duration `json:"timeout" mapstructure:"timeout"`
	WorkDir        string        `json:"work_dir" mapstructure:"work_dir"`
	Model          string        `json:"model" mapstructure:"model"`
	SystemPrompt   string        `json:"system_prompt" mapstructure:"system_prompt"`
	PermissionMode string        `json:"permission_mode" mapstructure:"permission_mode"`
	AllowedTools   []string      `json:"allowed_tools" mapstructure:"allowed_tools"`
	// SessionsPath is the conversation to session map file. Defaults to
	// <data_dir>/sessions.json.
	SessionsPath string `json:"sessions_path" mapstructure:"sessions_path"`
}

// SyncConfig holds watch-mode scheduling settings
type SyncConfig struct {
	// Interval between scheduled sync passes in watch mode.
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	// WatchClaudeStore enables the file watcher that imports credentials
	// when the Claude CLI rewrites its store.
	WatchClaudeStore bool `json:"watch_claude_store" mapstructure:"watch_claude_store"`
	// Debounce collapses bursts of file events into one import.
	Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the metrics listener configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Stores: StoresConfig{
			RefreshMargin: 5 * time.Minute,
		},
		Runner: RunnerConfig{
			Timeout: 5 * time.Minute,
		},
		Sync: SyncConfig{
			Interval:         15 * time.Minute,
			WatchClaudeStore: true,
			Debounce:         2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9465",
		},
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	if c.Stores.RefreshMargin < 0 {
		return fmt.Errorf("refresh_margin cannot be negative")
	}
	if c.Runner.Timeout <= 0 {
		return fmt.Errorf("runner timeout must be positive")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if c.Sync.Debounce < 0 {
		return fmt.Errorf("sync debounce cannot be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	switch c.Runner.PermissionMode {
	case "", "default", "acceptEdits", "bypassPermissions", "plan":
	default:
		return fmt.Errorf("invalid permission_mode %q", c.Runner.PermissionMode)
	}
	return nil
}
