// Package chat runs one request/response cycle per user turn: it appends
// the user message, streams the answer into a single bot message and
// repairs the conversation when the stream fails.
package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"nutribot/backend"
	"nutribot/model"
)

const (
	// DefaultTypingDelay paces the reveal of streamed text. It is cosmetic
	// and never changes the final text.
	DefaultTypingDelay = 10 * time.Millisecond

	errorMessagePrefix = "⚠️ Error: "
)

var (
	// ErrBusy is returned when a turn is already in flight for the conversation
	ErrBusy = errors.New("a response is still streaming for this conversation")

	// ErrUnknownConversation is returned when submitting to a missing conversation
	ErrUnknownConversation = errors.New("conversation not found")

	errEmptyResponse = errors.New("empty response from backend")
)

// Backend is the part of the backend client the controller uses
type Backend interface {
	OpenChat(ctx context.Context, req backend.ChatRequest) (backend.UnitStream, error)
	UploadPDFFile(ctx context.Context, path string) (*backend.UploadResult, error)
}

// Options tune the controller
type Options struct {
	TypingDelay time.Duration
	Recovery    RecoveryPolicy
	Logger      zerolog.Logger
}

// Status holds the flags the presentation layer renders for a conversation
type Status struct {
	Loading  bool
	Thinking bool
}

// Event is emitted on every turn transition and upload state change
type Event struct {
	ConversationID string
	State          State
	Uploading      bool
	Err            error
}

// Controller orchestrates turns against a Store. It never keeps
// conversation data between turns; every mutation goes through the Store
// and targets a conversation by id.
type Controller struct {
	store     *model.Store
	grounding *model.GroundingHolder
	selection *model.Selection
	backend   Backend
	delay     time.Duration
	recovery  RecoveryPolicy
	log       zerolog.Logger

	mu        sync.Mutex
	turns     map[string]*Turn // in-flight turn per conversation id
	uploading int
	listeners []func(Event)
	wg        sync.WaitGroup
}

func NewController(store *model.Store, grounding *model.GroundingHolder, selection *model.Selection, b Backend, opts Options) *Controller {
	return &Controller{
		store:     store,
		grounding: grounding,
		selection: selection,
		backend:   b,
		delay:     opts.TypingDelay,
		recovery:  opts.Recovery,
		log:       opts.Logger.With().Str("component", "chat").Logger(),
		turns:     make(map[string]*Turn),
	}
}

// OnEvent registers a listener. Listeners are called from turn goroutines
// and must not block.
func (c *Controller) OnEvent(l func(Event)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	listeners := append([]func(Event){}, c.listeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}

// Status returns the loading and thinking flags of a conversation
func (c *Controller) Status(conversationID string) Status {
	c.mu.Lock()
	turn := c.turns[conversationID]
	c.mu.Unlock()
	if turn == nil {
		return Status{}
	}
	return Status{Loading: true, Thinking: turn.Thinking()}
}

// Turn returns the in-flight turn of a conversation, if any
func (c *Controller) Turn(conversationID string) (*Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	turn, ok := c.turns[conversationID]
	return turn, ok
}

// Submit starts a turn in the given conversation. Blank text is rejected
// with a *model.ValidationError and a conversation that already has a turn
// in flight with ErrBusy; neither touches the store.
func (c *Controller) Submit(ctx context.Context, conversationID, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &model.ValidationError{Reason: "message is empty"}
	}

	c.mu.Lock()
	if _, busy := c.turns[conversationID]; busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	conv, ok := c.store.Get(conversationID)
	if !ok {
		c.mu.Unlock()
		return nil, ErrUnknownConversation
	}
	runCtx, cancel := context.WithCancel(ctx)
	turn := newTurn(conversationID, newTurnMachine(c.recovery), cancel)
	c.turns[conversationID] = turn
	c.mu.Unlock()

	firstUserMessage := conv.UserMessageCount() == 0
	c.store.AppendMessage(conversationID, model.NewUserMessage(text))
	if firstUserMessage {
		c.store.RenameIfDefault(conversationID, text)
	}

	req := backend.ChatRequest{
		Message:    text,
		Model:      c.selection.Get(),
		APIKey:     "",
		PDFContext: c.grounding.FullText(conversationID),
	}

	turn.start()
	c.log.Debug().
		Str("conversation_id", conversationID).
		Str("bot_message_id", turn.BotMessageID).
		Str("model", req.Model.ID).
		Msg("turn started")
	c.emit(Event{ConversationID: conversationID, State: StateAwaitingFirstByte})

	c.wg.Add(1)
	go c.run(runCtx, turn, req)

	return turn, nil
}

// Cancel stops the in-flight turn of a conversation. It reports whether
// there was one.
func (c *Controller) Cancel(conversationID string) bool {
	turn, ok := c.Turn(conversationID)
	if !ok {
		return false
	}
	turn.Cancel()
	return true
}

// Shutdown cancels every in-flight turn and waits for them to finish
func (c *Controller) Shutdown() {
	c.mu.Lock()
	for _, turn := range c.turns {
		turn.Cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) run(ctx context.Context, turn *Turn, req backend.ChatRequest) {
	defer c.wg.Done()

	stream, err := c.backend.OpenChat(ctx, req)
	if err != nil {
		c.stop(ctx, turn, err)
		return
	}
	// Released on every exit path below.
	defer stream.Close()

	for {
		unit, err := stream.Next()
		if err == io.EOF {
			if endErr := turn.end(); endErr != nil {
				c.stop(ctx, turn, endErr)
				return
			}
			c.finish(turn, StateFinalized, nil)
			return
		}
		if err != nil {
			c.stop(ctx, turn, err)
			return
		}

		c.apply(turn, unit)

		if c.delay > 0 {
			timer := time.NewTimer(c.delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		if ctx.Err() != nil {
			c.stop(ctx, turn, ctx.Err())
			return
		}
	}
}

// apply feeds one unit to the turn and mirrors the result into the store
func (c *Controller) apply(turn *Turn, unit string) {
	effect, text, err := turn.feed(unit)
	if err != nil {
		c.log.Warn().Err(err).Str("conversation_id", turn.ConversationID).Msg("unit dropped")
		return
	}

	switch effect {
	case EffectInsertBot:
		c.store.AppendMessage(turn.ConversationID, model.Message{
			ID:        turn.BotMessageID,
			Text:      text,
			Sender:    model.SenderBot,
			Timestamp: model.Now(),
		})
		turn.markInserted()
		c.emit(Event{ConversationID: turn.ConversationID, State: StateStreaming})
	case EffectUpdateBot:
		c.store.UpdateMessageText(turn.ConversationID, turn.BotMessageID, text)
	}
}

// stop ends a turn that did not reach end-of-data: cancelled when the
// context is done, error recovery otherwise.
func (c *Controller) stop(ctx context.Context, turn *Turn, cause error) {
	if ctx.Err() != nil {
		if err := turn.cancelled(); err == nil {
			c.log.Debug().Str("conversation_id", turn.ConversationID).Msg("turn cancelled")
			c.finish(turn, StateCancelled, ctx.Err())
			return
		}
	}
	c.recover(turn, cause)
}

// recover replaces the turn's output with an error message
func (c *Controller) recover(turn *Turn, cause error) {
	effect, err := turn.fail()
	if err != nil {
		c.log.Error().Err(err).Str("conversation_id", turn.ConversationID).Msg("recovery in unexpected state")
		return
	}

	errMsg := model.NewErrorMessage(errorMessagePrefix + describe(cause))
	switch effect {
	case EffectAppendError, EffectAppendErrorKeepPartial:
		c.store.AppendMessage(turn.ConversationID, errMsg)
	case EffectReplaceWithError:
		c.store.ReplaceMessage(turn.ConversationID, turn.BotMessageID, errMsg)
	}

	c.log.Warn().
		Err(cause).
		Str("conversation_id", turn.ConversationID).
		Bool("had_partial", effect != EffectAppendError).
		Msg("turn failed")

	transportErr := cause
	var te *model.TransportError
	if !errors.As(cause, &te) {
		transportErr = &model.TransportError{Op: "chat", Err: cause}
	}
	c.finish(turn, StateErrorRecovery, transportErr)
}

// finish releases the re-entrancy guard, notifies listeners and then
// wakes waiters
func (c *Controller) finish(turn *Turn, state State, err error) {
	c.mu.Lock()
	if c.turns[turn.ConversationID] == turn {
		delete(c.turns, turn.ConversationID)
	}
	c.mu.Unlock()

	c.emit(Event{ConversationID: turn.ConversationID, State: state, Err: err})
	turn.complete(err)
}

// describe renders a failure for the conversation
func describe(err error) string {
	var te *model.TransportError
	if errors.As(err, &te) {
		reason := "connection failed"
		if te.Err != nil {
			reason = errors.Cause(te.Err).Error()
		}
		if te.StatusCode != 0 {
			return fmt.Sprintf("HTTP %d: %s", te.StatusCode, reason)
		}
		return reason
	}
	return err.Error()
}
