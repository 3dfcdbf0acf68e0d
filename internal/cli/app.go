package cli

import (
	"fmt"

	"github.com/hanif/selaras/internal/config"
	"github.com/hanif/selaras/internal/logger"
	"github.com/hanif/selaras/pkg/credstore"
	"github.com/hanif/selaras/pkg/credsync"
	"github.com/hanif/selaras/pkg/oauth"
	"github.com/hanif/selaras/pkg/runner"
	"github.com/hanif/selaras/pkg/sessionmap"
)

// app bundles the wired components every command starts from.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	syncer *credsync.Syncer
}

// newApp loads config, sets up logging, and wires the credential stores.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	lg, err := logger.New(logger.Config{
		Level:     level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	zl := lg.GetZerolog()

	profile := credstore.NewProfileStore(cfg.Stores.ProfilePath, zl)
	claude, err := credstore.NewClaudeStore(cfg.Stores.ClaudePath, zl)
	if err != nil {
		lg.Close()
		return nil, err
	}

	var opts []oauth.Option
	if cfg.OAuth.TokenURL != "" {
		opts = append(opts, oauth.WithTokenURL(cfg.OAuth.TokenURL))
	}
	if cfg.OAuth.ClientID != "" {
		opts = append(opts, oauth.WithClientID(cfg.OAuth.ClientID))
	}
	refresher := oauth.NewClient(zl, opts...)

	syncer := credsync.New(profile, claude, refresher, cfg.Stores.RefreshMargin, zl)

	return &app{
		cfg:    cfg,
		log:    lg,
		syncer: syncer,
	}, nil
}

// newRunner wires the CLI runner with its session map.
func (a *app) newRunner() (*runner.Runner, error) {
	sessions, err := a.newSessionStore()
	if err != nil {
		return nil, err
	}
	return runner.New(runner.Config{
		CLIPath:        a.cfg.Runner.CLIPath,
		Timeout:        a.cfg.Runner.Timeout,
		WorkDir:        a.cfg.Runner.WorkDir,
		Model:          a.cfg.Runner.Model,
		SystemPrompt:   a.cfg.Runner.SystemPrompt,
		PermissionMode: a.cfg.Runner.PermissionMode,
		AllowedTools:   a.cfg.Runner.AllowedTools,
	}, sessions, a.log.GetZerolog())
}

func (a *app) newSessionStore() (*sessionmap.Store, error) {
	return sessionmap.New(a.cfg.Runner.SessionsPath, a.log.GetZerolog())
}

func (a *app) Close() {
	if a.log != nil {
		a.log.Close()
	}
}
