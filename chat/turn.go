package chat

import (
	"context"
	"sync"

	"nutribot/model"
)

// Turn is the handle of one in-flight request/response cycle. It can be
// cancelled and waited on.
type Turn struct {
	ConversationID string
	// BotMessageID is reserved when the turn starts; the message itself is
	// only inserted when the first unit of content arrives.
	BotMessageID string

	mu       sync.Mutex
	machine  *turnMachine
	thinking bool
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

func newTurn(conversationID string, machine *turnMachine, cancel context.CancelFunc) *Turn {
	return &Turn{
		ConversationID: conversationID,
		BotMessageID:   model.NewID(),
		machine:        machine,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (t *Turn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine.state
}

// Thinking reports whether the turn is still waiting for its first unit
func (t *Turn) Thinking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.thinking
}

// Text returns the accumulated answer so far
func (t *Turn) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine.Text()
}

// Cancel aborts the turn. It is safe to call multiple times and after completion.
func (t *Turn) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once the turn reached a terminal state
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn completes. It returns nil when the answer was
// finalized, the context error when cancelled and a *model.TransportError
// after error recovery.
func (t *Turn) Wait() error {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Turn) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.machine.Start(); err == nil {
		t.thinking = true
	}
}

func (t *Turn) feed(unit string) (Effect, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine.Feed(unit)
}

// markInserted ends the thinking phase once the bot message is in the store
func (t *Turn) markInserted() {
	t.mu.Lock()
	t.thinking = false
	t.mu.Unlock()
}

func (t *Turn) end() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine.End()
}

func (t *Turn) fail() (Effect, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine.Fail()
}

func (t *Turn) cancelled() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.thinking = false
	return t.machine.Cancel()
}

func (t *Turn) complete(err error) {
	t.mu.Lock()
	t.err = err
	t.thinking = false
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(t.done)
}
