// Package tui is the live dashboard for a run: task list, plan progress and
// approval prompts, fed by the message bus.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/autopilot/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	paneCount
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane     TaskPaneModel
	progressPane ProgressPaneModel
	approvalPane ApprovalPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Message
	approvals    <-chan ApprovalRequestMsg
	width        int
	height       int
	quitting     bool
}

// New creates a dashboard watching bus. approver may be nil when recovery
// approvals are not taken interactively.
func New(bus *events.Bus, approver *Approver) Model {
	m := Model{
		taskPane:     NewTaskPaneModel(),
		progressPane: NewProgressPaneModel(),
		approvalPane: NewApprovalPaneModel(),
		focusedPane:  PaneTasks,
		eventSub:     bus.Watch(256),
	}
	if approver != nil {
		m.approvals = approver.requests
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(m.eventSub)}
	if m.approvals != nil {
		cmds = append(cmds, waitForApproval(m.approvals))
	}
	return tea.Batch(cmds...)
}

// waitForEvent returns a command that waits for the next bus message.
func waitForEvent(sub <-chan events.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return msg
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		act := actionFor(msg)
		if act == actionInterrupt {
			m.approvalPane.Deny()
			m.quitting = true
			return m, tea.Quit
		}

		// The approval form is modal
		if m.approvalPane.IsVisible() {
			var cmd tea.Cmd
			m.approvalPane, cmd = m.approvalPane.Update(msg)
			cmds = append(cmds, cmd)
			if !m.approvalPane.IsVisible() {
				cmds = append(cmds, waitForApproval(m.approvals))
			}
			return m, tea.Batch(cmds...)
		}

		switch act {
		case actionQuit:
			m.quitting = true
			return m, tea.Quit

		case actionNextPane:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case actionPrevPane:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case actionFocusTasks:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case actionFocusProgress:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.approvalPane.SetSize(msg.Width, msg.Height)

	case events.Message:
		m.taskPane, _ = m.taskPane.Update(msg)
		m.progressPane, _ = m.progressPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case ApprovalRequestMsg:
		cmds = append(cmds, m.approvalPane.Show(msg))

	default:
		// Form internals (cursor blink and the like)
		if m.approvalPane.IsVisible() {
			var cmd tea.Cmd
			m.approvalPane, cmd = m.approvalPane.Update(msg)
			cmds = append(cmds, cmd)
			if !m.approvalPane.IsVisible() {
				cmds = append(cmds, waitForApproval(m.approvals))
			}
		}
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.approvalPane.IsVisible() {
		return m.approvalPane.View()
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.progressPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, mainContent, HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.progressPane.SetSize(rightWidth, availableHeight)
	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
