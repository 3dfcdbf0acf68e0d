// Package watch runs credential sync continuously: a cron schedule drives
// periodic sync passes, and a file watcher imports credentials whenever the
// Claude CLI rewrites its own store.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hanif/selaras/pkg/credsync"
)

// Config holds watch-mode settings.
type Config struct {
	// Interval between scheduled sync passes.
	Interval time.Duration
	// ClaudeStorePath is the Claude CLI credentials file to watch. Empty
	// disables the file watcher.
	ClaudeStorePath string
	// Debounce collapses bursts of file events into one import.
	Debounce time.Duration
}

// Watcher drives periodic syncs and store-change imports.
type Watcher struct {
	cfg    Config
	syncer *credsync.Syncer
	logger zerolog.Logger

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// New creates a Watcher.
func New(cfg Config, syncer *credsync.Syncer, logger zerolog.Logger) (*Watcher, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("watch interval must be positive")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	return &Watcher{
		cfg:    cfg,
		syncer: syncer,
		logger: logger.With().Str("component", "watch").Logger(),
	}, nil
}

// Run performs an initial sync and then blocks, syncing on the configured
// interval and importing on store changes, until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.syncer.Sync(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Initial sync failed")
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", w.cfg.Interval), func() {
		if _, err := w.syncer.Sync(ctx); err != nil {
			w.logger.Error().Err(err).Msg("Scheduled sync failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	var fsw *fsnotify.Watcher
	if w.cfg.ClaudeStorePath != "" {
		var err error
		fsw, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create file watcher: %w", err)
		}
		defer fsw.Close()

		// Watch the directory: the CLI replaces the file by rename, which
		// would drop a watch on the file itself.
		dir := filepath.Dir(w.cfg.ClaudeStorePath)
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.logger.Info().
			Str("path", w.cfg.ClaudeStorePath).
			Msg("Watching Claude CLI credential store")
	}

	w.logger.Info().
		Dur("interval", w.cfg.Interval).
		Msg("Watch mode started")

	for {
		if fsw == nil {
			<-ctx.Done()
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			w.cancelPendingImport()
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.cfg.ClaudeStorePath) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.cfg.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.logger.Info().Msg("Claude CLI store changed, importing")
		if _, err := w.syncer.Import(ctx); err != nil {
			w.logger.Error().Err(err).Msg("Import after store change failed")
		}
	})
}

func (w *Watcher) cancelPendingImport() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
}
