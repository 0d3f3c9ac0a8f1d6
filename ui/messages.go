package ui

import (
	"nutribot/chat"
	"nutribot/model"
)

// storeChangedMsg carries the newest store snapshot into the program
type storeChangedMsg struct {
	snap model.Snapshot
}

// chatEventMsg carries a controller transition into the program
type chatEventMsg struct {
	event chat.Event
}

type markdownRenderedMsg struct {
	MessageID string
	Text      string
	Width     int
	Rendered  string
}

type uploadDoneMsg struct {
	err error
}

type exportDoneMsg struct {
	path string
	err  error
}

type clipboardDoneMsg struct {
	err error
}
