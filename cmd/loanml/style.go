package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(22)
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

// kv renders aligned key/value lines.
func kv(pairs ...[2]string) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(keyStyle.Render(p[0]))
		b.WriteString(p[1])
	}
	return b.String()
}

func decisionLine(approved bool, message string) string {
	if approved {
		return okStyle.Render(message)
	}
	return errorStyle.Render(message)
}

func pct(v float64) string { return fmt.Sprintf("%.1f%%", v*100) }
