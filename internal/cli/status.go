package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hanif/selaras/pkg/credsync"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential store status",
	Long:  `Show the presence and expiry of credentials in both stores.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.syncer.Status(cmd.Context())
	if err != nil {
		return err
	}

	sessions, err := a.newSessionStore()
	if err != nil {
		return err
	}
	mappings, err := sessions.List(cmd.Context())
	if err != nil {
		return err
	}

	if statusJSON {
		out := struct {
			*credsync.Status
			SessionMappings int `json:"sessionMappings"`
		}{st, len(mappings)}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	printStoreStatus("Profile store", st.Profile)
	printStoreStatus("Claude CLI store", st.Claude)
	fmt.Printf("Session mappings: %d\n", len(mappings))
	return nil
}

func printStoreStatus(name string, s credsync.StoreStatus) {
	switch {
	case s.Error != "":
		fmt.Printf("%s: error (%s)\n", name, s.Error)
	case !s.Present:
		fmt.Printf("%s: no credentials\n", name)
	case s.ExpiresAt.IsZero():
		fmt.Printf("%s: present, no expiry\n", name)
	case s.Expired:
		fmt.Printf("%s: expired %s ago\n", name, formatDuration(time.Since(s.ExpiresAt)))
	default:
		fmt.Printf("%s: valid for %s\n", name, formatDuration(time.Until(s.ExpiresAt)))
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
