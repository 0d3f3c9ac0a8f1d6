package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"nutribot/chat"
	"nutribot/config"
	"nutribot/model"
	"nutribot/storage"
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout()
		a.ready = true
		a.updateViewportContent(true)
		// Cached renders are width specific
		return a, a.scheduleRenders()

	case storeChangedMsg:
		if msg.snap.Version <= a.snap.Version {
			return a, nil
		}
		switched := msg.snap.ActiveID != a.snap.ActiveID
		atBottom := a.viewport.AtBottom()
		a.snap = msg.snap
		a.updateViewportContent(atBottom || switched)
		return a, a.scheduleRenders()

	case chatEventMsg:
		a.updateViewportContent(a.viewport.AtBottom())
		if msg.event.State.Terminal() {
			if msg.event.State == chat.StateCancelled && msg.event.ConversationID == a.snap.ActiveID {
				a.status = "Answer stopped"
			}
			return a, a.scheduleRenders()
		}
		return a, nil

	case markdownRenderedMsg:
		delete(a.pendingRender, msg.MessageID)
		if msg.Width != a.mainWidth() {
			// Resized while rendering
			return a, a.scheduleRenders()
		}
		a.rendered[msg.MessageID] = renderedMessage{text: msg.Text, width: msg.Width, out: msg.Rendered}
		a.updateViewportContent(a.viewport.AtBottom())
		return a, nil

	case spinner.TickMsg:
		a.spinner, cmd = a.spinner.Update(msg)
		if a.chat.Status(a.snap.ActiveID).Thinking {
			a.updateViewportContent(a.viewport.AtBottom())
		}
		return a, cmd

	case uploadDoneMsg:
		// Failures are already reported inside the conversation
		if msg.err == nil {
			a.status = "PDF attached"
		}
		return a, nil

	case exportDoneMsg:
		if msg.err != nil {
			a.log.Warn().Err(msg.err).Msg("export failed")
			a.notice = &notice{title: "Export failed", message: msg.err.Error(), kind: ModalTypeError}
			return a, nil
		}
		a.status = "Exported to " + msg.path
		return a, nil

	case clipboardDoneMsg:
		if msg.err != nil {
			a.status = "Copy failed: " + msg.err.Error()
		} else {
			a.status = "Copied last response"
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}

	// Blocking layers first
	if a.notice != nil {
		switch msg.String() {
		case "enter", "esc":
			a.notice = nil
		}
		return a, nil
	}
	if a.showHelp {
		switch msg.String() {
		case "f1", "esc":
			a.showHelp = false
		}
		return a, nil
	}
	if a.mode != inputNone {
		return a.handlePromptKey(msg)
	}

	a.status = ""
	id := a.snap.ActiveID

	switch msg.String() {
	case "enter":
		return a.submit()

	case "esc":
		if a.chat.Cancel(id) {
			a.log.Debug().Str("conversation_id", id).Msg("turn cancelled by user")
		}
		return a, nil

	case "ctrl+n":
		a.store.Create()
		a.refresh(true)
		return a, nil

	case "ctrl+d":
		if len(a.snap.Conversations) <= 1 {
			a.notice = &notice{
				title:   "Cannot delete",
				message: "NutriBot needs at least one conversation.\nCreate a new one first.",
				kind:    ModalTypeWarning,
			}
			return a, nil
		}
		a.chat.Cancel(id)
		if err := a.store.Delete(id); err != nil {
			a.notice = &notice{title: "Cannot delete", message: err.Error(), kind: ModalTypeWarning}
			return a, nil
		}
		a.refresh(true)
		return a, a.scheduleRenders()

	case "ctrl+j", "ctrl+k":
		step := 1
		if msg.String() == "ctrl+k" {
			step = -1
		}
		a.selectRelative(step)
		return a, a.scheduleRenders()

	case "ctrl+r":
		conv, _ := a.snap.Active()
		a.openPrompt(inputRename, conv.Title, "New title")
		return a, nil

	case "ctrl+f":
		a.openPrompt(inputFilter, "", "Type to filter by title or content")
		a.matches = searchConversations(a.snap.Conversations, "")
		a.matchIdx = 0
		for i, m := range a.matches {
			if m.ConversationID == id {
				a.matchIdx = i
			}
		}
		return a, nil

	case "ctrl+u":
		a.openPrompt(inputAttach, "", "~/Documents/diet.pdf")
		return a, nil

	case "ctrl+x":
		doc, ok := a.grounding.Get(id)
		if !ok {
			a.status = "No PDF attached"
			return a, nil
		}
		a.chat.RemoveDocument(id)
		a.status = "Removed " + doc.SourceName
		a.refresh(true)
		return a, nil

	case "ctrl+t":
		next := model.NextModel(a.selection.Get())
		a.selection.Set(next)
		a.status = fmt.Sprintf("Model: %s (%s)", next.DisplayName, next.ProviderLabel)
		return a, nil

	case "ctrl+y":
		conv, _ := a.snap.Active()
		last, ok := conv.LastBotMessage()
		if !ok {
			a.status = "Nothing to copy yet"
			return a, nil
		}
		return a, func() tea.Msg {
			return clipboardDoneMsg{err: clipboard.WriteAll(last.Text)}
		}

	case "ctrl+e":
		conv, _ := a.snap.Active()
		return a, func() tea.Msg {
			path := storage.GenerateExportPath(conv.Title, time.Now())
			return exportDoneMsg{path: path, err: storage.ExportConversation(conv, path)}
		}

	case "f1":
		a.showHelp = true
		return a, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) submit() (tea.Model, tea.Cmd) {
	id := a.snap.ActiveID
	_, err := a.chat.Submit(context.Background(), id, a.textarea.Value())

	var invalid *model.ValidationError
	switch {
	case errors.As(err, &invalid):
		return a, nil
	case errors.Is(err, chat.ErrBusy):
		a.status = "NutriBot is still answering. Press Esc to stop it."
		return a, nil
	case err != nil:
		a.log.Error().Err(err).Str("conversation_id", id).Msg("submit failed")
		a.status = err.Error()
		return a, nil
	}

	a.textarea.Reset()
	a.refresh(true)
	return a, nil
}

func (a AppView) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.closePrompt()
		return a, nil

	case "enter":
		return a.confirmPrompt()

	case "up", "down":
		if a.mode == inputFilter {
			if msg.String() == "up" && a.matchIdx > 0 {
				a.matchIdx--
			}
			if msg.String() == "down" && a.matchIdx < len(a.matches)-1 {
				a.matchIdx++
			}
			return a, nil
		}
	}

	var cmd tea.Cmd
	a.promptInput, cmd = a.promptInput.Update(msg)
	if a.mode == inputFilter {
		a.matches = searchConversations(a.snap.Conversations, a.promptInput.Value())
		a.matchIdx = 0
	}
	return a, cmd
}

func (a AppView) confirmPrompt() (tea.Model, tea.Cmd) {
	id := a.snap.ActiveID
	value := a.promptInput.Value()
	mode := a.mode
	matches, matchIdx := a.matches, a.matchIdx
	a.closePrompt()

	switch mode {
	case inputRename:
		if err := a.store.Rename(id, value); err != nil {
			a.notice = &notice{title: "Cannot rename", message: err.Error(), kind: ModalTypeWarning}
			return a, nil
		}
		a.refresh(false)

	case inputFilter:
		if matchIdx < 0 || matchIdx >= len(matches) {
			return a, nil
		}
		a.store.Select(matches[matchIdx].ConversationID)
		a.refresh(true)
		return a, a.scheduleRenders()

	case inputAttach:
		// Drag and drop usually quotes the path
		path := strings.Trim(strings.TrimSpace(value), `'"`)
		if path == "" {
			return a, nil
		}
		ctrl := a.chat
		return a, func() tea.Msg {
			return uploadDoneMsg{err: ctrl.UploadDocument(context.Background(), id, config.ExpandPath(path))}
		}
	}
	return a, nil
}

func (a *AppView) openPrompt(mode inputMode, value, placeholder string) {
	a.mode = mode
	a.promptInput.Reset()
	a.promptInput.SetValue(value)
	a.promptInput.Placeholder = placeholder
	a.promptInput.CursorEnd()
	a.promptInput.Focus()
	a.textarea.Blur()
}

func (a *AppView) closePrompt() {
	a.mode = inputNone
	a.matches = nil
	a.promptInput.Blur()
	a.textarea.Focus()
}

// selectRelative moves the active conversation by step, wrapping around
func (a *AppView) selectRelative(step int) {
	n := len(a.snap.Conversations)
	if n < 2 {
		return
	}
	cur := 0
	for i, conv := range a.snap.Conversations {
		if conv.ID == a.snap.ActiveID {
			cur = i
		}
	}
	next := (cur + step + n) % n
	a.store.Select(a.snap.Conversations[next].ID)
	a.refresh(true)
}

// refresh pulls the store snapshot after a mutation made from Update so
// the next frame does not wait for the bridge
func (a *AppView) refresh(gotoBottom bool) {
	if snap := a.store.Snapshot(); snap.Version > a.snap.Version {
		a.snap = snap
	}
	if a.ready {
		a.updateViewportContent(gotoBottom)
	}
}
