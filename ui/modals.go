package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// ModalType determines the color of a modal title
type ModalType int

const (
	ModalTypeInfo ModalType = iota
	ModalTypeWarning
	ModalTypeError
)

const maxFilterRows = 8

func (t ModalType) color() lipgloss.Color {
	switch t {
	case ModalTypeWarning:
		return warningColor
	case ModalTypeError:
		return dangerColor
	default:
		return accentColor
	}
}

// RenderAcknowledgeModal renders a modal dismissed with Enter
func RenderAcknowledgeModal(title, message string, modalType ModalType, width, height int) string {
	return renderMessageModal(title, message, "Press Enter to acknowledge", modalType, width, height)
}

func renderMessageModal(title, message, footer string, modalType ModalType, width, height int) string {
	modalWidth := fitModalWidth(60, width)
	messageStyle := lipgloss.NewStyle().
		Width(modalWidth).
		Align(lipgloss.Center)

	var lines []string
	for _, line := range strings.Split(message, "\n") {
		lines = append(lines, messageStyle.Render(line))
	}
	return RenderThreeSectionModal(title, lines, footer, modalType, modalWidth, width, height)
}

// renderPromptModal shows a single-line input with an optional hint under it
func renderPromptModal(title string, input textinput.Model, hint string, width, height int) string {
	modalWidth := fitModalWidth(60, width)
	input.Width = modalWidth - 4

	lines := []string{"  " + input.View()}
	if hint != "" {
		lines = append(lines, "", lipgloss.NewStyle().
			Width(modalWidth).
			Foreground(dimColor).
			PaddingLeft(2).
			Render(hint))
	}
	footer := FormatFooter("Enter", "Confirm", "Esc", "Cancel")
	return RenderThreeSectionModal(title, lines, footer, ModalTypeInfo, modalWidth, width, height)
}

// renderFilterModal shows the filter input above the matching conversations
func renderFilterModal(input textinput.Model, matches []conversationMatch, selected, width, height int) string {
	modalWidth := fitModalWidth(70, width)
	input.Width = modalWidth - 4

	lines := []string{"  " + input.View(), ""}
	if len(matches) == 0 {
		lines = append(lines, DimStyle.Render("  No matching conversations"))
	}

	// Keep the selection inside the visible window
	start := 0
	if selected >= maxFilterRows {
		start = selected - maxFilterRows + 1
	}
	end := start + maxFilterRows
	if end > len(matches) {
		end = len(matches)
	}

	for i := start; i < end; i++ {
		m := matches[i]
		title := runewidth.Truncate(m.Title, modalWidth-6, "…")
		if i == selected {
			lines = append(lines, SelectedStyle.Render("  ▸ "+title))
		} else {
			lines = append(lines, "    "+highlightMatches(title, m.TitleIndexes))
		}
		if m.Preview != "" {
			lines = append(lines, DimStyle.Render("      "+runewidth.Truncate(m.Preview, modalWidth-8, "…")))
		}
	}

	footer := FormatFooter("↑/↓", "Move", "Enter", "Open", "Esc", "Cancel")
	return RenderThreeSectionModal("Find conversation", lines, footer, ModalTypeInfo, modalWidth, width, height)
}

// highlightMatches colours the runes of s starting at the given byte offsets
func highlightMatches(s string, indexes []int) string {
	if len(indexes) == 0 {
		return s
	}
	hit := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		hit[i] = true
	}

	var b strings.Builder
	for i, r := range s {
		if hit[i] {
			b.WriteString(HighlightStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RenderThreeSectionModal renders a borderless modal:
// title (no border), message (top border), footer (top border)
func RenderThreeSectionModal(title string, messageLines []string, footer string, modalType ModalType, modalWidth, width, height int) string {
	// Centered by hand so wide emoji are measured correctly
	titleVisualWidth := runewidth.StringWidth(title)
	leftPad := (modalWidth - titleVisualWidth) / 2
	if leftPad < 0 {
		leftPad = 0
	}
	rightPad := modalWidth - titleVisualWidth - leftPad
	if rightPad < 0 {
		rightPad = 0
	}
	titleSection := lipgloss.NewStyle().
		Bold(true).
		Foreground(modalType.color()).
		Render(strings.Repeat(" ", leftPad) + title + strings.Repeat(" ", rightPad))

	contentLines := []string{strings.Repeat(" ", modalWidth)}
	contentLines = append(contentLines, messageLines...)
	contentLines = append(contentLines, strings.Repeat(" ", modalWidth))

	messageSection := lipgloss.NewStyle().
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Width(modalWidth).
		Render(strings.Join(contentLines, "\n"))

	footerSection := lipgloss.NewStyle().
		Foreground(dimColor).
		Align(lipgloss.Center).
		Width(modalWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(footer)

	content := strings.Join([]string{titleSection, messageSection, footerSection}, "\n")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func fitModalWidth(preferred, width int) int {
	if width < preferred+10 {
		preferred = width - 10
	}
	if preferred < 20 {
		preferred = 20
	}
	return preferred
}
