// Package runner invokes the Claude CLI non-interactively, captures its
// stream-json output, and keeps conversation continuity across invocations
// through a session map.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hanif/selaras/internal/observability"
	"github.com/hanif/selaras/pkg/sessionmap"
)

const (
	// DefaultTimeout bounds a single CLI invocation.
	DefaultTimeout = 5 * time.Minute

	// Long JSON lines are normal in stream output; raise the scanner limits
	// well past bufio defaults.
	scanBufSize  = 256 * 1024
	scanMaxToken = 1024 * 1024

	stderrTailLines = 10
	killGrace       = 5 * time.Second
)

// Config holds the invocation defaults shared by every Run.
type Config struct {
	// CLIPath is the claude binary. Empty means look up "claude" in PATH.
	CLIPath string
	// Timeout bounds each invocation. Zero means DefaultTimeout.
	Timeout time.Duration
	// WorkDir is the working directory for the CLI process.
	WorkDir string
	// Model is passed as --model when set.
	Model string
	// SystemPrompt is passed as --append-system-prompt when set.
	SystemPrompt string
	// PermissionMode is passed as --permission-mode when set.
	PermissionMode string
	// AllowedTools is passed as --allowedTools when non-empty.
	AllowedTools []string
	// Env entries are appended to the inherited environment.
	Env []string
}

// Request is one invocation.
type Request struct {
	// ConversationKey selects the conversation to continue. Empty runs a
	// one-off invocation with no session bookkeeping.
	ConversationKey string
	// Prompt is the user prompt. Required.
	Prompt string
	// SystemPrompt overrides the configured system prompt when set.
	SystemPrompt string
	// WorkDir overrides the configured working directory when set.
	WorkDir string
}

// Result is the outcome of one invocation.
type Result struct {
	Text          string   `json:"text"`
	SessionID     string   `json:"sessionId"`
	Resumed       bool     `json:"resumed"`
	IsError       bool     `json:"isError"`
	Subtype       string   `json:"subtype,omitempty"`
	DurationMs    int64    `json:"durationMs"`
	DurationAPIMs int64    `json:"durationApiMs"`
	TotalCostUSD  float64  `json:"totalCostUsd"`
	NumTurns      int      `json:"numTurns"`
	Usage         Usage    `json:"usage"`
	ToolsUsed     []string `json:"toolsUsed,omitempty"`
}

// Runner invokes the CLI.
type Runner struct {
	cfg      Config
	sessions *sessionmap.Store
	logger   zerolog.Logger
}

// New creates a Runner. The session store may be nil, in which case no
// conversation continuity is kept.
func New(cfg Config, sessions *sessionmap.Store, logger zerolog.Logger) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.CLIPath == "" {
		path, err := exec.LookPath("claude")
		if err != nil {
			return nil, fmt.Errorf("claude CLI not found in PATH: %w", err)
		}
		cfg.CLIPath = path
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Runner{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger.With().Str("component", "runner").Logger(),
	}, nil
}

// BuildArgs assembles the CLI argument list for a prompt. sessionID starts a
// new conversation with a caller-chosen id; resumeID continues an existing
// one. At most one of the two may be set.
func (r *Runner) BuildArgs(req Request, sessionID, resumeID string) []string {
	args := []string{"--print", "--verbose", "--output-format", "stream-json"}

	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	} else if sessionID != "" {
		args = append(args, "--session-id", sessionID)
	}

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = r.cfg.SystemPrompt
	}
	if systemPrompt != "" {
		args = append(args, "--append-system-prompt", systemPrompt)
	}
	if r.cfg.Model != "" {
		args = append(args, "--model", r.cfg.Model)
	}
	if r.cfg.PermissionMode != "" {
		args = append(args, "--permission-mode", r.cfg.PermissionMode)
	}
	if len(r.cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(r.cfg.AllowedTools, ","))
	}

	args = append(args, req.Prompt)
	return args
}

// Run performs one bounded invocation. When the request names a conversation
// key with an existing mapping, the run resumes that session; a resume that
// fails because the CLI no longer knows the session drops the stale mapping
// and retries once as a new conversation.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if req.ConversationKey != "" {
		if err := sessionmap.ValidateKey(req.ConversationKey); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result, err := r.run(ctx, req)
	observability.RecordRun(time.Since(start), err == nil && !resultIsError(result))
	return result, err
}

func resultIsError(res *Result) bool {
	return res != nil && res.IsError
}

func (r *Runner) run(ctx context.Context, req Request) (*Result, error) {
	resumeID := ""
	if req.ConversationKey != "" && r.sessions != nil {
		entry, err := r.sessions.Get(ctx, req.ConversationKey)
		if err == nil {
			resumeID = entry.SessionID
		} else if !errors.Is(err, sessionmap.ErrNotFound) {
			return nil, err
		}
	}

	var result *Result
	var err error
	if resumeID != "" {
		result, err = r.invoke(ctx, req, "", resumeID)
		if err != nil && isStaleSession(err) {
			r.logger.Warn().
				Str("conversation", req.ConversationKey).
				Str("session_id", resumeID).
				Msg("Resume failed for unknown session, starting fresh")
			if r.sessions != nil {
				if delErr := r.sessions.Delete(ctx, req.ConversationKey); delErr != nil {
					r.logger.Warn().Err(delErr).Msg("Failed to drop stale session mapping")
				}
			}
			resumeID = ""
			result, err = r.invoke(ctx, req, uuid.NewString(), "")
		}
	} else {
		sessionID := ""
		if req.ConversationKey != "" {
			sessionID = uuid.NewString()
		}
		result, err = r.invoke(ctx, req, sessionID, "")
	}
	if err != nil {
		return nil, err
	}
	result.Resumed = resumeID != ""

	// The CLI reports a session id even for is_error results; keep the
	// mapping current either way so the next run continues the conversation.
	if req.ConversationKey != "" && r.sessions != nil && result.SessionID != "" {
		if err := r.sessions.Put(ctx, req.ConversationKey, result.SessionID); err != nil {
			r.logger.Warn().Err(err).
				Str("conversation", req.ConversationKey).
				Msg("Failed to persist session mapping")
		}
	}
	return result, nil
}

// runError carries process failure detail including the stderr tail.
type runError struct {
	msg    string
	stderr string
	err    error
}

func (e *runError) Error() string {
	if e.stderr != "" {
		return fmt.Sprintf("%s: %s", e.msg, e.stderr)
	}
	return e.msg
}

func (e *runError) Unwrap() error { return e.err }

// isStaleSession reports whether an invocation failed because the CLI no
// longer has the conversation being resumed.
func isStaleSession(err error) bool {
	var re *runError
	if !errors.As(err, &re) {
		return false
	}
	return strings.Contains(strings.ToLower(re.stderr), "no conversation found")
}

func (r *Runner) invoke(ctx context.Context, req Request, sessionID, resumeID string) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	args := r.BuildArgs(req, sessionID, resumeID)
	cmd := exec.CommandContext(runCtx, r.cfg.CLIPath, args...)
	cmd.WaitDelay = killGrace
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	} else if r.cfg.WorkDir != "" {
		cmd.Dir = r.cfg.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	r.logger.Debug().
		Str("cli", r.cfg.CLIPath).
		Str("session_id", sessionID).
		Str("resume_id", resumeID).
		Msg("Invoking claude CLI")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start claude CLI: %w", err)
	}

	acc := newStreamAccumulator()
	tail := newStderrTail(stderrTailLines)

	var g errgroup.Group
	g.Go(func() error {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, scanBufSize), scanMaxToken)
		for scanner.Scan() {
			if err := acc.consume(scanner.Bytes()); err != nil {
				return err
			}
		}
		return scanner.Err()
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, scanBufSize), scanMaxToken)
		for scanner.Scan() {
			tail.Add(scanner.Text())
		}
		return scanner.Err()
	})

	scanErr := g.Wait()
	waitErr := cmd.Wait()

	switch {
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		return nil, &runError{
			msg:    fmt.Sprintf("claude CLI timed out after %s", r.cfg.Timeout),
			stderr: tail.String(),
			err:    context.DeadlineExceeded,
		}
	case ctx.Err() != nil:
		return nil, &runError{
			msg:    "claude CLI invocation canceled",
			stderr: tail.String(),
			err:    ctx.Err(),
		}
	case waitErr != nil:
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &runError{
			msg:    fmt.Sprintf("claude CLI exited with code %d", exitCode),
			stderr: tail.String(),
			err:    waitErr,
		}
	case scanErr != nil:
		return nil, fmt.Errorf("read claude CLI output: %w", scanErr)
	}

	result, err := acc.finish()
	if err != nil {
		return nil, &runError{msg: err.Error(), stderr: tail.String()}
	}

	r.logger.Info().
		Str("session_id", result.SessionID).
		Bool("is_error", result.IsError).
		Int64("duration_ms", result.DurationMs).
		Float64("cost_usd", result.TotalCostUSD).
		Int("num_turns", result.NumTurns).
		Msg("Claude CLI invocation finished")
	return result, nil
}
