package recovery

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
)

// Request describes an action awaiting operator approval.
type Request struct {
	TaskID      int
	Strategy    Strategy
	Description string
	Commands    []string
	RiskLevel   string
}

func newRequest(a Action) Request {
	return Request{
		TaskID:      a.TaskID,
		Strategy:    a.Strategy,
		Description: a.Description,
		Commands:    append([]string(nil), a.Commands...),
		RiskLevel:   a.RiskLevel.String(),
	}
}

// Approver gates actions that require approval. Returning false rejects the
// action; an error is treated as a rejection.
type Approver interface {
	Approve(ctx context.Context, req Request) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, req Request) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, req Request) (bool, error) {
	return f(ctx, req)
}

// StaticApprover always gives the same answer. StaticApprover(true) is used
// for --auto-approve.
type StaticApprover bool

func (s StaticApprover) Approve(context.Context, Request) (bool, error) {
	return bool(s), nil
}

// TerminalApprover asks the operator with a confirm prompt.
type TerminalApprover struct {
	Input  io.Reader // nil means stdin
	Output io.Writer // nil means stdout
}

func (t TerminalApprover) Approve(ctx context.Context, req Request) (bool, error) {
	var ok bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Task %d: %s (%s risk)", req.TaskID, req.Description, req.RiskLevel)).
				Description(describeCommands(req.Commands)).
				Affirmative("Run").
				Negative("Reject").
				Value(&ok),
		),
	)
	if t.Input != nil {
		form = form.WithInput(t.Input)
	}
	if t.Output != nil {
		form = form.WithOutput(t.Output)
	}

	if err := form.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("approval prompt: %w", err)
	}
	return ok, nil
}

func describeCommands(cmds []string) string {
	if len(cmds) == 0 {
		return "No commands will be run."
	}
	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range cmds {
		b.WriteString("\n  $ ")
		b.WriteString(c)
	}
	return b.String()
}
