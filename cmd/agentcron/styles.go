package main

import (
	"github.com/charmbracelet/lipgloss"

	"agentcron/internal/task"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	labelStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	okStyle      = lipgloss.NewStyle().Foreground(successColor)
	runningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errStyle     = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
)

// statusText renders the last run state of t.
func statusText(t task.Task) string {
	if t.LastRunStatus == nil {
		return mutedStyle.Render("never run")
	}
	s := string(*t.LastRunStatus)
	switch *t.LastRunStatus {
	case task.StatusSuccess:
		return okStyle.Render(s)
	case task.StatusRunning:
		return runningStyle.Render(s)
	default:
		return errStyle.Render(s)
	}
}

func enabledText(on bool) string {
	if on {
		return okStyle.Render("on")
	}
	return mutedStyle.Render("off")
}
