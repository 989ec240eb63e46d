package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// keyAction is what a key press asks the dashboard to do.
type keyAction int

const (
	actionNone keyAction = iota
	actionQuit
	actionInterrupt
	actionNextPane
	actionPrevPane
	actionFocusTasks
	actionFocusProgress
	actionCursorUp
	actionCursorDown
	actionDeny
)

var keymap = map[string]keyAction{
	"q":         actionQuit,
	"ctrl+c":    actionInterrupt,
	"tab":       actionNextPane,
	"shift+tab": actionPrevPane,
	"1":         actionFocusTasks,
	"2":         actionFocusProgress,
	"up":        actionCursorUp,
	"k":         actionCursorUp,
	"down":      actionCursorDown,
	"j":         actionCursorDown,
	"esc":       actionDeny,
}

func actionFor(msg tea.KeyMsg) keyAction {
	return keymap[msg.String()]
}

var helpEntries = []struct{ keys, desc string }{
	{"tab", "cycle focus"},
	{"1/2", "jump to pane"},
	{"j/k", "select task"},
	{"esc", "reject approval"},
	{"q", "quit"},
}

// HelpView returns the one-line key help bar.
func HelpView() string {
	parts := make([]string, len(helpEntries))
	for i, e := range helpEntries {
		parts[i] = fmt.Sprintf("%s: %s", e.keys, e.desc)
	}
	return StyleHelp.Render(strings.Join(parts, " | "))
}
