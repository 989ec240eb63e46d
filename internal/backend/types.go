package backend

import "github.com/aristath/autopilot/internal/shell"

// Message is one prompt sent to an agent.
type Message struct {
	Content string
	TaskID  int
}

// Response is an agent's reply.
type Response struct {
	Content   string
	SessionID string
	Error     string
}

// Config selects and configures an agent backend.
type Config struct {
	Type      string   // "cli" or "claude"
	Command   string   // binary to run
	Args      []string // extra arguments; "{prompt}" is replaced by the message
	WorkDir   string
	Env       []string
	SessionID string
	Model     string
	Procs     *shell.ProcessManager
}
