package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type helpEntry struct {
	key  string
	desc string
}

var (
	conversationKeys = []helpEntry{
		{"Ctrl+N", "New conversation"},
		{"Ctrl+J", "Next conversation"},
		{"Ctrl+K", "Previous conversation"},
		{"Ctrl+F", "Find conversation"},
		{"Ctrl+R", "Rename conversation"},
		{"Ctrl+D", "Delete conversation"},
		{"Ctrl+E", "Export to ~/Downloads"},
		{"Ctrl+T", "Switch model"},
		{"F1", "Toggle this help"},
		{"Ctrl+C", "Quit"},
	}

	chatKeys = []helpEntry{
		{"Enter", "Send message"},
		{"Alt+Enter", "New line"},
		{"Esc", "Stop the answer"},
		{"Ctrl+U", "Attach a PDF"},
		{"Ctrl+X", "Remove the PDF"},
		{"Ctrl+Y", "Copy last response"},
		{"PgUp/PgDn", "Scroll"},
	}
)

func renderHelpSection(heading string, entries []helpEntry) string {
	blue := lipgloss.NewStyle().Foreground(accentColor)
	lines := []string{blue.Render("## " + heading)}
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("• %-13s %s", e.key, e.desc))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (a AppView) renderHelpModal(width, height int) string {
	green := lipgloss.NewStyle().
		Bold(true).
		Foreground(successColor)

	title := green.Render("NutriBot - Keyboard Shortcuts")
	if a.version != "" {
		title += DimStyle.Render(" v" + a.version)
	}

	tips := lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.NewStyle().Foreground(accentColor).Render("## Tips"),
		"• An attached PDF is sent with",
		"  every question of its conversation",
		"• Conversations are saved as you chat",
	)

	column1 := lipgloss.JoinVertical(
		lipgloss.Left,
		renderHelpSection("Conversations", conversationKeys),
	)

	column2 := lipgloss.JoinVertical(
		lipgloss.Left,
		renderHelpSection("Chat", chatKeys),
		"",
		tips,
	)

	columnStyle := lipgloss.NewStyle().Width(40).PaddingLeft(4)

	twoColumns := lipgloss.JoinHorizontal(
		lipgloss.Top,
		columnStyle.Render(column1),
		"  ",
		columnStyle.Render(column2),
	)

	footer := lipgloss.NewStyle().
		Foreground(dimColor).
		Render("Press F1 or Esc to close this help")

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		title,
		"",
		twoColumns,
		"",
		footer,
	)

	boxWidth := 90
	if width-4 < boxWidth {
		boxWidth = width - 4
	}
	helpBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(1, 2).
		Width(boxWidth)

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		helpBox.Render(content),
	)
}
