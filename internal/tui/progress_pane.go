package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/autopilot/internal/events"
)

const maxRunLog = 50

// ProgressPaneModel shows plan-wide counts and run-level messages.
type ProgressPaneModel struct {
	statuses map[int]string
	total    int
	rounds   int
	status   string // set when the run finishes
	log      []string
	width    int
	height   int
	focused  bool
}

// NewProgressPaneModel creates an empty progress pane.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{statuses: make(map[int]string)}
}

// Update handles bus messages.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	em, ok := msg.(events.Message)
	if !ok {
		return m, nil
	}

	if id, ok := em.Payload["task_id"].(int); ok {
		switch em.Payload["event"] {
		case events.EventTaskStarted:
			m.statuses[id] = "running"
		case events.EventTaskCompleted:
			m.statuses[id] = "completed"
		case events.EventTaskFailed:
			m.statuses[id] = "failed"
		case events.EventTaskCancelled:
			m.statuses[id] = "cancelled"
		}
		return m, nil
	}

	switch em.Payload["event"] {
	case events.EventRunProgress:
		if total, ok := em.Payload["total"].(int); ok {
			m.total = total
		}
		m.rounds++
	case events.EventRunFinished:
		m.status, _ = em.Payload["status"].(string)
	}

	summary, _ := em.Payload["summary"].(string)
	m.log = append(m.log, fmt.Sprintf("%s %s", em.Timestamp.Format("15:04:05"), summary))
	if len(m.log) > maxRunLog {
		m.log = m.log[len(m.log)-maxRunLog:]
	}
	return m, nil
}

// Counts tallies the task statuses seen so far.
func (m ProgressPaneModel) Counts() map[string]int {
	counts := make(map[string]int)
	for _, s := range m.statuses {
		counts[s]++
	}
	return counts
}

// Finished reports the final run status, or "" while running.
func (m ProgressPaneModel) Finished() string {
	return m.status
}

// View renders the pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	counts := m.Counts()
	total := max(m.total, len(m.statuses))

	var b strings.Builder
	title := StyleTitle.Render("Plan Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Total:     %d   Rounds: %d\n", total, m.rounds)
	fmt.Fprintf(&b, "Completed: %s\n", StatusStyle("completed").Render(fmt.Sprint(counts["completed"])))
	fmt.Fprintf(&b, "Running:   %s\n", StatusStyle("running").Render(fmt.Sprint(counts["running"])))
	fmt.Fprintf(&b, "Failed:    %s\n", StatusStyle("failed").Render(fmt.Sprint(counts["failed"])))
	fmt.Fprintf(&b, "Cancelled: %s\n", StatusStyle("cancelled").Render(fmt.Sprint(counts["cancelled"])))

	if total > 0 {
		barWidth := min(m.width-4, 40)
		completedWidth := (counts["completed"] * barWidth) / total
		failedWidth := ((counts["failed"] + counts["cancelled"]) * barWidth) / total
		runningWidth := (counts["running"] * barWidth) / total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StatusStyle("completed").Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StatusStyle("failed").Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StatusStyle("running").Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StatusStyle("pending").Render(strings.Repeat(".", max(0, pendingWidth)))
		fmt.Fprintf(&b, "\n[%s]  %d/%d\n", bar, counts["completed"], total)
	}

	if m.status != "" {
		fmt.Fprintf(&b, "\nRun %s. Press q to exit.\n", m.status)
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		room := max(1, m.height-16)
		start := max(0, len(m.log)-room)
		b.WriteString(strings.Join(m.log[start:], "\n"))
	}

	return PaneStyle(m.focused).
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
