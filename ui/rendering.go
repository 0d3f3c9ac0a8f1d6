package ui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"github.com/mattn/go-runewidth"

	"nutribot/model"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
)

const streamingCursor = "▋"

func (a *AppView) updateViewportContent(gotoBottom bool) {
	conv, ok := a.snap.Active()
	if !ok {
		a.viewport.SetContent("")
		return
	}

	inflight := ""
	if turn, busy := a.chat.Turn(conv.ID); busy {
		inflight = turn.BotMessageID
	}
	width := a.mainWidth()
	wrap := lipgloss.NewStyle().Width(width - 2)

	var content strings.Builder
	for _, msg := range conv.Messages {
		timestamp := DimStyle.Render(msg.Timestamp.Local().Format("[15:04]"))

		switch {
		case msg.Sender == model.SenderUser:
			content.WriteString(formatUserMessage(timestamp, UserStyle.Render("You"), wrap.Render(msg.Text)))
		case msg.IsError:
			content.WriteString(fmt.Sprintf("%s %s\n%s\n\n", timestamp, ErrorStyle.Bold(true).Render("NutriBot"), ErrorStyle.Width(width-2).Render(msg.Text)))
		case msg.ID == inflight:
			content.WriteString(fmt.Sprintf("%s %s\n%s\n\n", timestamp, BotStyle.Render("NutriBot"), wrap.Render(msg.Text+streamingCursor)))
		default:
			content.WriteString(fmt.Sprintf("%s %s\n%s\n\n", timestamp, BotStyle.Render("NutriBot"), a.renderedText(msg, wrap)))
		}
	}

	// Thinking indicator until the first character of the answer arrives
	if a.chat.Status(conv.ID).Thinking {
		content.WriteString(fmt.Sprintf("%s %s\n", a.spinner.View(), DimStyle.Render("NutriBot is thinking...")))
	}

	a.viewport.SetContent(content.String())
	if gotoBottom {
		a.viewport.GotoBottom()
	}
}

// renderedText returns the cached markdown for msg, or wrapped plain text
// while the render is pending
func (a AppView) renderedText(msg model.Message, wrap lipgloss.Style) string {
	if r, ok := a.rendered[msg.ID]; ok && r.text == msg.Text && r.width == a.mainWidth() {
		return r.out
	}
	return wrap.Render(msg.Text)
}

// scheduleRenders starts markdown renders for finished bot messages of the
// active conversation that have no up to date cache entry
func (a *AppView) scheduleRenders() tea.Cmd {
	conv, ok := a.snap.Active()
	if !ok {
		return nil
	}
	inflight := ""
	if turn, busy := a.chat.Turn(conv.ID); busy {
		inflight = turn.BotMessageID
	}

	width := a.mainWidth()
	var cmds []tea.Cmd
	for _, msg := range conv.Messages {
		if msg.Sender != model.SenderBot || msg.IsError || msg.ID == inflight || a.pendingRender[msg.ID] {
			continue
		}
		if r, ok := a.rendered[msg.ID]; ok && r.text == msg.Text && r.width == width {
			continue
		}
		a.pendingRender[msg.ID] = true
		cmds = append(cmds, a.renderMarkdownAsync(msg.ID, msg.Text, width))
	}
	return tea.Batch(cmds...)
}

func (a AppView) renderMarkdownAsync(messageID, text string, width int) tea.Cmd {
	log := a.log
	return func() tea.Msg {
		start := time.Now()
		rendered := renderMarkdown(text, width)
		log.Debug().
			Str("message_id", messageID).
			Int("length", len(text)).
			Dur("elapsed", time.Since(start)).
			Msg("markdown rendered")
		return markdownRenderedMsg{
			MessageID: messageID,
			Text:      text,
			Width:     width,
			Rendered:  rendered,
		}
	}
}

func renderMarkdown(text string, width int) string {
	// Strip markdown link syntax [text](url) -> url so links stay plain
	text = mdLinkRegex.ReplaceAllString(text, "$2")

	// Disable autolink so terminal emulators handle URL detection
	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	r := markdown.NewRenderer(width-4, 0)
	doc := p.Parse([]byte(text))
	rendered := string(gomarkdown.Render(doc, r))

	// Inline code: blue background -> red text
	rendered = inlineCodeRegex.ReplaceAllString(rendered, "\x1b[31m$1\x1b[0m")
	return strings.TrimRight(rendered, "\n")
}

func formatUserMessage(timestamp, role, content string) string {
	bar := UserStyle.Render("┃")

	var result strings.Builder
	result.WriteString(fmt.Sprintf("%s %s %s\n", bar, timestamp, role))
	for _, line := range strings.Split(content, "\n") {
		result.WriteString(fmt.Sprintf("%s %s\n", bar, line))
	}
	result.WriteString("\n")
	return result.String()
}

// truncateTitle fits a title into width terminal cells
func truncateTitle(title string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(title, width, "…")
}

func (a AppView) renderSidebar() string {
	lines := []string{TitleStyle.Render("Conversations"), ""}

	for _, conv := range a.snap.Conversations {
		marker := "  "
		style := lipgloss.NewStyle()
		if conv.ID == a.snap.ActiveID {
			marker = "▸ "
			style = SelectedStyle
		}

		badge := ""
		if _, busy := a.chat.Turn(conv.ID); busy {
			badge = " " + a.spinner.View()
		} else if conv.Grounding != nil {
			badge = " 📄"
		}

		titleWidth := sidebarWidth - runewidth.StringWidth(marker) - lipgloss.Width(badge)
		lines = append(lines, marker+style.Render(truncateTitle(conv.Title, titleWidth))+badge)
	}

	lines = append(lines, "", DimStyle.Render(fmt.Sprintf("%d conversation(s)", len(a.snap.Conversations))))

	return SidebarStyle.
		Width(sidebarWidth).
		Height(a.height).
		Render(strings.Join(lines, "\n"))
}
