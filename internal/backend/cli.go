package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aristath/autopilot/internal/shell"
)

// PromptPlaceholder in Config.Args is replaced with the message content.
const PromptPlaceholder = "{prompt}"

// CLIAdapter runs an arbitrary agent command once per message and returns
// its stdout. Without a {prompt} argument the message is appended last.
type CLIAdapter struct {
	command   string
	args      []string
	workDir   string
	env       []string
	sessionID string
	procs     *shell.ProcessManager
}

// NewCLIAdapter creates a generic command-line backend.
func NewCLIAdapter(cfg Config) (*CLIAdapter, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("cli backend: command is required")
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &CLIAdapter{
		command:   cfg.Command,
		args:      append([]string(nil), cfg.Args...),
		workDir:   cfg.WorkDir,
		env:       append([]string(nil), cfg.Env...),
		sessionID: sessionID,
		procs:     cfg.Procs,
	}, nil
}

func (a *CLIAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	res, err := shell.Exec(ctx, a.command, buildArgs(a.args, msg.Content), shell.Options{
		Dir:     a.workDir,
		Timeout: shell.NoTimeout,
		Env:     append(a.env, fmt.Sprintf("AUTOPILOT_TASK_ID=%d", msg.TaskID), "AUTOPILOT_SESSION_ID="+a.sessionID),
		Procs:   a.procs,
	})
	if err != nil {
		return Response{SessionID: a.sessionID, Error: fmt.Sprintf("%s failed: %v", a.command, err)}, err
	}
	return Response{Content: strings.TrimSpace(res.Stdout), SessionID: a.sessionID}, nil
}

func (a *CLIAdapter) Close() error { return nil }

func (a *CLIAdapter) SessionID() string { return a.sessionID }

// buildArgs substitutes the prompt into args, or appends it when no
// argument carries the placeholder.
func buildArgs(args []string, prompt string) []string {
	out := make([]string, 0, len(args)+1)
	substituted := false
	for _, arg := range args {
		if strings.Contains(arg, PromptPlaceholder) {
			arg = strings.ReplaceAll(arg, PromptPlaceholder, prompt)
			substituted = true
		}
		out = append(out, arg)
	}
	if !substituted {
		out = append(out, prompt)
	}
	return out
}
