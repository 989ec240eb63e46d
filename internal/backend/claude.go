package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aristath/autopilot/internal/shell"
)

// ClaudeAdapter drives the claude CLI in print mode. The first call opens a
// session and later calls resume it.
type ClaudeAdapter struct {
	command   string
	workDir   string
	model     string
	extraArgs []string
	procs     *shell.ProcessManager

	mu        sync.Mutex
	sessionID string
	started   bool
}

// claudeResponse is the JSON printed with --output-format json.
type claudeResponse struct {
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
}

// NewClaudeAdapter creates a claude backend. An empty SessionID starts a new session.
func NewClaudeAdapter(cfg Config) (*ClaudeAdapter, error) {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &ClaudeAdapter{
		command:   command,
		workDir:   cfg.WorkDir,
		model:     cfg.Model,
		extraArgs: append([]string(nil), cfg.Args...),
		procs:     cfg.Procs,
		sessionID: sessionID,
	}, nil
}

// Send runs one prompt. Calls on the same adapter are serialized because
// they share a session.
func (a *ClaudeAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := shell.Exec(ctx, a.command, a.buildArgs(msg, a.started), shell.Options{
		Dir:     a.workDir,
		Timeout: shell.NoTimeout,
		Procs:   a.procs,
	})
	if err != nil {
		return Response{SessionID: a.sessionID, Error: fmt.Sprintf("claude command failed: %v", err)}, err
	}

	resp, err := parseClaudeResponse([]byte(res.Stdout))
	if err != nil {
		return Response{Error: fmt.Sprintf("failed to parse claude response: %v (stderr: %s)", err, res.Stderr)}, err
	}
	if resp.SessionID != "" {
		a.sessionID = resp.SessionID
	}
	a.started = true
	if resp.Error != "" {
		return resp, fmt.Errorf("claude reported an error: %s", resp.Error)
	}
	return resp, nil
}

func (a *ClaudeAdapter) Close() error { return nil }

func (a *ClaudeAdapter) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// buildArgs constructs the claude arguments. A new session uses
// --session-id and later calls use --resume.
func (a *ClaudeAdapter) buildArgs(msg Message, resume bool) []string {
	args := []string{"-p", msg.Content, "--output-format", "json"}
	if resume {
		args = append(args, "--resume", a.sessionID)
	} else {
		args = append(args, "--session-id", a.sessionID)
	}
	if a.model != "" {
		args = append(args, "--model", a.model)
	}
	return append(args, a.extraArgs...)
}

func parseClaudeResponse(data []byte) (Response, error) {
	var cr claudeResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return Response{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	resp := Response{Content: cr.Result, SessionID: cr.SessionID}
	if cr.IsError {
		resp.Error = cr.Result
	}
	return resp, nil
}
