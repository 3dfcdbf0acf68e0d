package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionsPurgeAge time.Duration

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation to session mappings",
	Long:  `List and prune the stored conversation to Claude CLI session mappings.`,
	RunE:  runSessionsList,
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove stale session mappings",
	RunE:  runSessionsPurge,
}

var sessionsForgetCmd = &cobra.Command{
	Use:   "forget <conversation>",
	Short: "Remove the mapping for one conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsForget,
}

func init() {
	sessionsPurgeCmd.Flags().DurationVar(&sessionsPurgeAge, "older-than", 30*24*time.Hour, "remove mappings not used within this duration")
	sessionsCmd.AddCommand(sessionsPurgeCmd)
	sessionsCmd.AddCommand(sessionsForgetCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.newSessionStore()
	if err != nil {
		return err
	}

	entries, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No session mappings")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%-30s %s  (updated %s)\n", e.Key, e.SessionID, e.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runSessionsPurge(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.newSessionStore()
	if err != nil {
		return err
	}

	removed, err := store.Purge(cmd.Context(), sessionsPurgeAge)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d session mapping(s)\n", removed)
	return nil
}

func runSessionsForget(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.newSessionStore()
	if err != nil {
		return err
	}

	if err := store.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Forgot conversation %q\n", args[0])
	return nil
}
