package model

import "time"

// Sender identifies who authored a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is a single entry in a conversation.
// Once inserted into a Store only Text may change.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	IsError   bool      `json:"isError,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a user message stamped with the current time
func NewUserMessage(text string) Message {
	return Message{ID: NewID(), Text: text, Sender: SenderUser, Timestamp: Now()}
}

// NewBotMessage creates a bot message stamped with the current time
func NewBotMessage(text string) Message {
	return Message{ID: NewID(), Text: text, Sender: SenderBot, Timestamp: Now()}
}

// NewErrorMessage creates a bot message flagged as an error
func NewErrorMessage(text string) Message {
	msg := NewBotMessage(text)
	msg.IsError = true
	return msg
}

// Now returns the current time in UTC without a monotonic clock reading,
// so values survive a serialization round trip unchanged.
func Now() time.Time {
	return time.Now().UTC()
}
