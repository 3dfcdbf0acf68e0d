package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hanif/selaras/pkg/runner"
)

var (
	runConversation string
	runTimeout      time.Duration
	runJSON         bool
	runWorkDir      string
	runSystemPrompt string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run a prompt through the Claude CLI",
	Long: `Run invokes the Claude CLI non-interactively with the given prompt and
prints the result. The prompt is read from stdin when no argument is given.

With --conversation the session is remembered under that key and subsequent
runs with the same key continue the same conversation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConversation, "conversation", "c", "", "conversation key for session continuity")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "override the configured invocation timeout")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full result as JSON")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", "", "working directory for the CLI process")
	runCmd.Flags().StringVar(&runSystemPrompt, "system-prompt", "", "extra system prompt for this run")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt := ""
	if len(args) == 1 {
		prompt = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read prompt from stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return fmt.Errorf("prompt is required (argument or stdin)")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if runTimeout > 0 {
		a.cfg.Runner.Timeout = runTimeout
	}

	r, err := a.newRunner()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := r.Run(ctx, runner.Request{
		ConversationKey: runConversation,
		Prompt:          prompt,
		SystemPrompt:    runSystemPrompt,
		WorkDir:         runWorkDir,
	})
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Println(result.Text)
	}

	if result.IsError {
		return fmt.Errorf("claude CLI reported an error result")
	}
	return nil
}
