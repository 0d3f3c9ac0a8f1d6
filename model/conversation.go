package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// TitleMaxRunes is the number of runes kept when deriving a title
	TitleMaxRunes = 30

	defaultTitlePrefix = "Conversation"
)

// Placeholders written by the browser client are Spanish.
var defaultTitleRegex = regexp.MustCompile(`^(Conversation|Conversación) \d+$`)

// GroundingContext is the extracted text of an uploaded document
type GroundingContext struct {
	SourceName  string `json:"filename"`
	FullText    string `json:"text"`
	PreviewText string `json:"preview"`
}

// Conversation is one chat thread with its message history
type Conversation struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Messages  []Message         `json:"messages"`
	Grounding *GroundingContext `json:"pdfContext"`
	CreatedAt time.Time         `json:"createdAt"`
}

// DefaultTitle returns the placeholder title for the n-th conversation
func DefaultTitle(n int) string {
	return fmt.Sprintf("%s %d", defaultTitlePrefix, n)
}

// IsDefaultTitle reports whether title is still an unedited placeholder
func IsDefaultTitle(title string) bool {
	return defaultTitleRegex.MatchString(title)
}

// DeriveTitle builds a conversation title from the first user message.
// Text longer than TitleMaxRunes is cut and suffixed with "...".
func DeriveTitle(text string) string {
	text = sanitizeTitle(text)
	runes := []rune(text)
	if len(runes) > TitleMaxRunes {
		return string(runes[:TitleMaxRunes]) + "..."
	}
	return text
}

// UserMessageCount returns how many messages were sent by the user
func (c Conversation) UserMessageCount() int {
	n := 0
	for _, msg := range c.Messages {
		if msg.Sender == SenderUser {
			n++
		}
	}
	return n
}

// FindMessage returns the message with the given id
func (c Conversation) FindMessage(id string) (Message, bool) {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return Message{}, false
}

// LastBotMessage returns the most recent bot message that is not an error
func (c Conversation) LastBotMessage() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		msg := c.Messages[i]
		if msg.Sender == SenderBot && !msg.IsError {
			return msg, true
		}
	}
	return Message{}, false
}

// withMessages returns a shallow copy of c holding msgs
func (c Conversation) withMessages(msgs []Message) Conversation {
	c.Messages = msgs
	return c
}

func sanitizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\n", " ")
	title = strings.ReplaceAll(title, "\r", " ")
	return strings.TrimSpace(title)
}
