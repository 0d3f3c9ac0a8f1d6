package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"nutribot/chat"
	"nutribot/model"
)

const (
	sidebarWidth    = 30
	minSidebarWidth = 90 // terminals narrower than this hide the conversation list
	textareaHeight  = 3
)

// inputMode is the single-line prompt currently shown over the chat
type inputMode int

const (
	inputNone inputMode = iota
	inputRename
	inputAttach
	inputFilter
)

type notice struct {
	title   string
	message string
	kind    ModalType
}

type renderedMessage struct {
	text  string
	width int
	out   string
}

// Deps are the components the view drives
type Deps struct {
	Store     *model.Store
	Grounding *model.GroundingHolder
	Selection *model.Selection
	Chat      *chat.Controller
	Logger    zerolog.Logger
	Version   string
}

type AppView struct {
	store     *model.Store
	grounding *model.GroundingHolder
	selection *model.Selection
	chat      *chat.Controller
	log       zerolog.Logger
	version   string

	// Latest store snapshot received; never mutated here
	snap model.Snapshot

	// UI Components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// Window state
	width  int
	height int
	ready  bool

	// Markdown cache by message id. Maps, so copies of AppView share them.
	rendered      map[string]renderedMessage
	pendingRender map[string]bool

	showHelp bool
	notice   *notice

	mode        inputMode
	promptInput textinput.Model
	matches     []conversationMatch
	matchIdx    int

	status string
}

func NewAppView(deps Deps) AppView {
	ta := textarea.New()
	ta.Placeholder = "Ask NutriBot about food, diets or your uploaded PDF..."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(textareaHeight)
	ta.SetWidth(80)

	// Custom KeyMap: Alt+Enter for newline, Enter alone sends (handled in Update)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	// Set dynamic prompt: "> " for first line, "| " for subsequent lines
	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = BotStyle

	prompt := textinput.New()
	prompt.CharLimit = 512

	return AppView{
		store:         deps.Store,
		grounding:     deps.Grounding,
		selection:     deps.Selection,
		chat:          deps.Chat,
		log:           deps.Logger.With().Str("component", "ui").Logger(),
		version:       deps.Version,
		snap:          deps.Store.Snapshot(),
		viewport:      viewport.New(0, 0),
		textarea:      ta,
		spinner:       sp,
		promptInput:   prompt,
		rendered:      make(map[string]renderedMessage),
		pendingRender: make(map[string]bool),
	}
}

func (a AppView) Init() tea.Cmd {
	// Markdown waits for the first WindowSizeMsg so it renders at the right width
	return tea.Batch(textarea.Blink, a.spinner.Tick)
}

func (a AppView) View() string {
	if !a.ready {
		return "Loading NutriBot..."
	}

	// Modal rendering order (top to bottom layers):
	// 1. Notice (blocking acknowledgement)
	// 2. Help
	// 3. Prompts (rename, attach, filter)
	if a.notice != nil {
		return RenderAcknowledgeModal(a.notice.title, a.notice.message, a.notice.kind, a.width, a.height)
	}

	if a.showHelp {
		return a.renderHelpModal(a.width, a.height)
	}

	switch a.mode {
	case inputRename:
		return renderPromptModal("Rename conversation", a.promptInput, "", a.width, a.height)
	case inputAttach:
		return renderPromptModal("Attach a PDF", a.promptInput, "Path to a .pdf file; its text is sent with every question.", a.width, a.height)
	case inputFilter:
		return renderFilterModal(a.promptInput, a.matches, a.matchIdx, a.width, a.height)
	}

	return a.renderMain()
}

func (a AppView) renderMain() string {
	conv, _ := a.snap.Active()
	sel := a.selection.Get()

	// Title bar - "NutriBot - Model (Provider) - Conversation"
	title := BotStyle.Bold(true).Render("NutriBot") +
		TitleStyle.Render(fmt.Sprintf(" - %s (%s)", sel.DisplayName, sel.ProviderLabel)) +
		UserStyle.Render(" - "+conv.Title)

	docLine := DimStyle.Render("No PDF attached")
	if conv.Grounding != nil {
		docLine = SelectedStyle.Render("📄 "+conv.Grounding.SourceName) + DimStyle.Render("  (ctrl+x to remove)")
	}
	if a.chat.Uploading() {
		docLine = a.spinner.View() + " Processing PDF..."
	}

	statusBar := FormatFooter(
		"Enter", "Send",
		"Alt+Enter", "New line",
		"Esc", "Stop",
		"Ctrl+N", "New",
		"Ctrl+U", "PDF",
		"Ctrl+T", "Model",
		"F1", "Help",
	)
	if a.status != "" {
		statusBar = SelectedStyle.Render(a.status)
	}

	main := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		"",
		a.viewport.View(),
		docLine,
		a.textarea.View(),
		StatusStyle.Render(statusBar),
	)

	if !a.showSidebar() {
		return main
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, a.renderSidebar(), main)
}

func (a AppView) showSidebar() bool {
	return a.width >= minSidebarWidth
}

func (a AppView) mainWidth() int {
	if !a.showSidebar() {
		return a.width
	}
	// sidebar content + padding + border
	return a.width - sidebarWidth - 2
}

// layout sizes the components after a resize
func (a *AppView) layout() {
	w := a.mainWidth()
	a.textarea.SetWidth(w)
	a.viewport.Width = w
	// title, blank line, document line, status bar
	h := a.height - textareaHeight - 4
	if h < 1 {
		h = 1
	}
	a.viewport.Height = h
}
