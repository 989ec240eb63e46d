package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/autopilot/internal/events"
)

// TaskState is the dashboard's view of one plan task.
type TaskState struct {
	ID          int
	Description string
	Status      string // "pending", "running", "completed", "failed", "cancelled", "recovering"
	Risk        string
	Log         []string
}

// TaskPaneModel lists tasks on the left and the selected task's log on the right.
type TaskPaneModel struct {
	tasks       map[int]*TaskState
	order       []int // first-seen order
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[int]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// Update handles key presses and bus messages.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch actionFor(msg) {
		case actionCursorDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case actionCursorUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.Message:
		m.apply(msg)
	}

	return m, cmd
}

// apply records a bus message against the task it names, if any.
func (m *TaskPaneModel) apply(msg events.Message) {
	id, ok := msg.Payload["task_id"].(int)
	if !ok {
		return
	}
	task := m.task(id)
	if desc, ok := msg.Payload["description"].(string); ok && desc != "" {
		task.Description = desc
	}

	switch msg.Payload["event"] {
	case events.EventTaskHighRisk:
		if risk, ok := msg.Payload["risk_level"].(string); ok {
			task.Risk = risk
		}
	case events.EventTaskStarted:
		task.Status = "running"
	case events.EventTaskCompleted:
		task.Status = "completed"
	case events.EventTaskFailed:
		task.Status = "failed"
	case events.EventTaskCancelled:
		task.Status = "cancelled"
	case events.EventRecoveryProposed:
		task.Status = "recovering"
	}

	summary, _ := msg.Payload["summary"].(string)
	task.Log = append(task.Log, fmt.Sprintf("%s [%s] %s", msg.Timestamp.Format("15:04:05"), msg.Type, summary))
	if m.selectedID() == id {
		m.updateViewportContent()
	}
}

func (m *TaskPaneModel) task(id int) *TaskState {
	if t, ok := m.tasks[id]; ok {
		return t
	}
	t := &TaskState{ID: id, Description: fmt.Sprintf("Task %d", id), Status: "pending"}
	m.tasks[id] = t
	m.order = append(m.order, id)
	if len(m.order) == 1 {
		m.selectedIdx = 0
	}
	return t
}

// Task returns the state of a task seen on the bus.
func (m TaskPaneModel) Task(id int) (TaskState, bool) {
	t, ok := m.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

// View renders the pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 30
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	return PaneStyle(m.focused).
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StatusStyle("pending").Render("Waiting..."))
	}
	for i, id := range m.order {
		task := m.tasks[id]
		name := fmt.Sprintf("%d %s", task.ID, task.Description)
		if len(name) > width-4 {
			name = name[:max(0, width-7)] + "..."
		}
		if task.Risk != "" {
			name = RiskStyle(task.Risk).Render(name)
		}

		line := fmt.Sprintf("%s %s", StatusIcon(task.Status), name)
		if i == m.selectedIdx {
			line = lipgloss.NewStyle().
				Background(colorAccent).
				Foreground(lipgloss.Color("0")).
				Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

var statusIcons = map[string]string{
	"running":    "●",
	"recovering": "↻",
	"completed":  "✓",
	"failed":     "✗",
	"cancelled":  "⊘",
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	icon, ok := statusIcons[status]
	if !ok {
		return StatusStyle("pending").Render("○")
	}
	return StatusStyle(status).Render(icon)
}

func (m TaskPaneModel) selectedID() int {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return -1
}

func (m *TaskPaneModel) updateViewportContent() {
	task, ok := m.tasks[m.selectedID()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(strings.Join(task.Log, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(10, m.width-30-4)
	m.viewport.Height = max(5, m.height-4)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
