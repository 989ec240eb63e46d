package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/autopilot/internal/recovery"
)

// ApprovalRequestMsg asks the dashboard to confirm a recovery action.
type ApprovalRequestMsg struct {
	Request recovery.Request
	reply   chan<- bool
}

// Approver implements recovery.Approver by prompting inside the dashboard.
// Requests wait until the model is running and picks them up.
type Approver struct {
	requests chan ApprovalRequestMsg
}

// NewApprover creates an approver for use with New.
func NewApprover() *Approver {
	return &Approver{requests: make(chan ApprovalRequestMsg)}
}

// Approve blocks until the operator answers or ctx ends.
func (a *Approver) Approve(ctx context.Context, req recovery.Request) (bool, error) {
	reply := make(chan bool, 1)

	select {
	case a.requests <- ApprovalRequestMsg{Request: req, reply: reply}:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case approved := <-reply:
		return approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func waitForApproval(requests <-chan ApprovalRequestMsg) tea.Cmd {
	return func() tea.Msg {
		req, ok := <-requests
		if !ok {
			return nil
		}
		return req
	}
}

// ApprovalPaneModel is the modal confirm form shown for an approval request.
type ApprovalPaneModel struct {
	form     *huh.Form
	pending  *ApprovalRequestMsg
	approved bool
	width    int
	height   int
}

// NewApprovalPaneModel creates a hidden approval pane.
func NewApprovalPaneModel() ApprovalPaneModel {
	return ApprovalPaneModel{}
}

// Show displays the form for req and returns its init command.
func (m *ApprovalPaneModel) Show(req ApprovalRequestMsg) tea.Cmd {
	m.pending = &req
	m.approved = false

	r := req.Request
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Apply %s recovery for task %d?", r.Strategy, r.TaskID)).
				Description(describe(r)).
				Affirmative("Apply").
				Negative("Reject").
				Value(&m.approved),
		),
	)
	if m.width > 0 {
		m.form.WithWidth(m.width - 8)
	}
	return m.form.Init()
}

func describe(r recovery.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nRisk: %s\n", r.Description, r.RiskLevel)
	if len(r.Commands) > 0 {
		b.WriteString("\nCommands:\n")
		for _, c := range r.Commands {
			fmt.Fprintf(&b, "  $ %s\n", c)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Update routes input to the form and answers the request when it completes.
func (m ApprovalPaneModel) Update(msg tea.Msg) (ApprovalPaneModel, tea.Cmd) {
	if m.pending == nil {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && actionFor(key) == actionDeny {
		m.answer(false)
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.answer(m.approved)
	case huh.StateAborted:
		m.answer(false)
	}
	return m, cmd
}

// Deny rejects the pending request, if any.
func (m *ApprovalPaneModel) Deny() {
	m.answer(false)
}

func (m *ApprovalPaneModel) answer(approved bool) {
	if m.pending == nil {
		return
	}
	m.pending.reply <- approved
	m.pending = nil
	m.form = nil
}

// IsVisible reports whether a request is waiting for an answer.
func (m ApprovalPaneModel) IsVisible() bool {
	return m.pending != nil
}

// View renders the form in a bordered box.
func (m ApprovalPaneModel) View() string {
	if m.pending == nil {
		return ""
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("208")).
		Render("⚠ Approval required")

	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("208")).
		Padding(1, 2).
		Width(max(20, m.width-4)).
		Render(m.form.View())

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the pane dimensions.
func (m *ApprovalPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8)
	}
}
