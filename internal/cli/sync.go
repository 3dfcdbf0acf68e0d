package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hanif/selaras/internal/observability"
	"github.com/hanif/selaras/internal/watch"
	"github.com/hanif/selaras/pkg/credstore"
)

var (
	syncWatch  bool
	syncImport bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync credentials into the Claude CLI store",
	Long: `Sync refreshes the profile credentials when they are close to expiry and
relays them into the Claude CLI's credential store.

With --import the direction is reversed: credentials are pulled out of the
Claude CLI store into the profile store, typically after a manual
'claude login'.

With --watch the command keeps running, syncing on an interval and importing
whenever the Claude CLI rewrites its store.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "keep running and sync on an interval")
	syncCmd.Flags().BoolVar(&syncImport, "import", false, "import credentials from the Claude CLI store instead")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncWatch && syncImport {
		return fmt.Errorf("--watch and --import are mutually exclusive")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	if syncImport {
		res, err := a.syncer.Import(ctx)
		if err != nil {
			return err
		}
		if res.Imported {
			fmt.Printf("Imported credentials (expires %s)\n", res.ExpiresAt.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Println("Profile credentials are newer, nothing imported")
		}
		return nil
	}

	if !syncWatch {
		res, err := a.syncer.Sync(ctx)
		if err != nil {
			return err
		}
		if res.Refreshed {
			fmt.Printf("Token refreshed and synced (expires %s)\n", res.ExpiresAt.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Printf("Credentials synced (expires %s)\n", res.ExpiresAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	// Watch mode
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Metrics.Enabled {
		go serveMetrics(ctx, a, a.cfg.Metrics.Listen)
	}

	storePath := ""
	if a.cfg.Sync.WatchClaudeStore {
		storePath = a.cfg.Stores.ClaudePath
		if storePath == "" {
			storePath = credstore.DefaultPath()
		}
	}
	w, err := watch.New(watch.Config{
		Interval:        a.cfg.Sync.Interval,
		ClaudeStorePath: storePath,
		Debounce:        a.cfg.Sync.Debounce,
	}, a.syncer, a.log.GetZerolog())
	if err != nil {
		return err
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveMetrics runs the metrics listener until ctx is canceled.
func serveMetrics(ctx context.Context, a *app, listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("Metrics listener shutdown failed")
		}
	}()

	a.log.Info().Str("listen", listen).Msg("Metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Error().Err(err).Msg("Metrics listener failed")
	}
}
