package model

import (
	"slices"
	"sync"
)

// DefaultGreeting seeds every new conversation
const DefaultGreeting = "Hi! I'm NutriBot 🌱. How can I help you today?"

// Snapshot is an immutable view of the conversation collection.
// Mutations never touch a published snapshot; they build a new one.
type Snapshot struct {
	Version       uint64
	ActiveID      string
	Conversations []Conversation
}

// Find returns the conversation with the given id
func (s Snapshot) Find(id string) (Conversation, bool) {
	if i := s.index(id); i >= 0 {
		return s.Conversations[i], true
	}
	return Conversation{}, false
}

// Active returns the active conversation
func (s Snapshot) Active() (Conversation, bool) {
	return s.Find(s.ActiveID)
}

func (s Snapshot) index(id string) int {
	for i, conv := range s.Conversations {
		if conv.ID == id {
			return i
		}
	}
	return -1
}

// Listener is notified with the new snapshot after every effective mutation.
// Listeners run on the mutating goroutine after the store lock is released
// and may observe snapshots out of order; compare Version when it matters.
type Listener func(Snapshot)

// Store owns the conversation collection. It is the only component that
// inserts, deletes or reorders conversations and messages, and it always
// holds at least one conversation.
type Store struct {
	mu        sync.Mutex
	snap      Snapshot
	greeting  string
	listeners map[int]Listener
	nextSub   int
}

// NewStore creates a store seeded with one conversation
func NewStore(greeting string) *Store {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	s := &Store{
		greeting:  greeting,
		listeners: make(map[int]Listener),
	}
	s.Create()
	return s
}

// Subscribe registers l and returns a function that removes it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current collection
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Get returns the conversation with the given id
func (s *Store) Get(id string) (Conversation, bool) {
	return s.Snapshot().Find(id)
}

// ActiveID returns the id of the active conversation
func (s *Store) ActiveID() string {
	return s.Snapshot().ActiveID
}

// Create allocates a new conversation seeded with the greeting and makes it active
func (s *Store) Create() Conversation {
	var created Conversation
	s.update(func(prev Snapshot) (Snapshot, bool, error) {
		now := Now()
		created = Conversation{
			ID:    NewID(),
			Title: DefaultTitle(len(prev.Conversations) + 1),
			Messages: []Message{{
				ID:        NewID(),
				Text:      s.greeting,
				Sender:    SenderBot,
				Timestamp: now,
			}},
			CreatedAt: now,
		}
		next := prev
		next.Conversations = append(slices.Clip(prev.Conversations), created)
		next.ActiveID = created.ID
		return next, true, nil
	})
	return created
}

// Select makes id the active conversation. Unknown ids are ignored.
func (s *Store) Select(id string) {
	s.update(func(prev Snapshot) (Snapshot, bool, error) {
		if prev.ActiveID == id || prev.index(id) < 0 {
			return prev, false, nil
		}
		next := prev
		next.ActiveID = id
		return next, true, nil
	})
}

// Delete removes a conversation. Removing the last remaining conversation
// fails with a *PreconditionError. When the active conversation is removed
// the first remaining conversation becomes active.
func (s *Store) Delete(id string) error {
	return s.update(func(prev Snapshot) (Snapshot, bool, error) {
		i := prev.index(id)
		if i < 0 {
			return prev, false, nil
		}
		if len(prev.Conversations) <= 1 {
			return prev, false, &PreconditionError{Reason: "cannot delete the last conversation"}
		}
		next := prev
		next.Conversations = slices.Delete(slices.Clone(prev.Conversations), i, i+1)
		if prev.ActiveID == id {
			next.ActiveID = next.Conversations[0].ID
		}
		return next, true, nil
	})
}

// AppendMessage appends msg to a conversation. It is a no-op when the
// conversation no longer exists.
func (s *Store) AppendMessage(conversationID string, msg Message) {
	s.mutateConversation(conversationID, func(conv Conversation) (Conversation, bool) {
		msgs := make([]Message, len(conv.Messages), len(conv.Messages)+1)
		copy(msgs, conv.Messages)
		return conv.withMessages(append(msgs, msg)), true
	})
}

// UpdateMessageText replaces the text of a message in place. Id, sender
// and timestamp are preserved. Unknown ids are ignored.
func (s *Store) UpdateMessageText(conversationID, messageID, text string) {
	s.mutateConversation(conversationID, func(conv Conversation) (Conversation, bool) {
		for i, msg := range conv.Messages {
			if msg.ID != messageID {
				continue
			}
			if msg.Text == text {
				return conv, false
			}
			msgs := slices.Clone(conv.Messages)
			msgs[i].Text = text
			return conv.withMessages(msgs), true
		}
		return conv, false
	})
}

// ReplaceMessage removes the message with id oldID, if present, and appends
// msg in a single mutation. Error recovery uses it to swap a partial answer
// for an error message without exposing an intermediate state.
func (s *Store) ReplaceMessage(conversationID, oldID string, msg Message) {
	s.mutateConversation(conversationID, func(conv Conversation) (Conversation, bool) {
		msgs := make([]Message, 0, len(conv.Messages)+1)
		for _, m := range conv.Messages {
			if m.ID != oldID {
				msgs = append(msgs, m)
			}
		}
		return conv.withMessages(append(msgs, msg)), true
	})
}

// SetGroundingContext replaces the grounding context wholesale; nil clears it.
func (s *Store) SetGroundingContext(conversationID string, ctx *GroundingContext) {
	s.mutateConversation(conversationID, func(conv Conversation) (Conversation, bool) {
		if ctx != nil {
			cp := *ctx
			ctx = &cp
		}
		conv.Grounding = ctx
		return conv, true
	})
}

// RenameIfDefault derives a title from candidate while the conversation
// still carries its placeholder title. It reports whether a rename happened.
func (s *Store) RenameIfDefault(conversationID, candidate string) bool {
	renamed := false
	s.mutateConversation(conversationID, func(conv Conversation) (Conversation, bool) {
		if !IsDefaultTitle(conv.Title) {
			return conv, false
		}
		title := DeriveTitle(candidate)
		if title == "" {
			return conv, false
		}
		conv.Title = title
		renamed = true
		return conv, true
	})
	return renamed
}

// Rename sets an explicit title
func (s *Store) Rename(conversationID, title string) error {
	title = sanitizeTitle(title)
	if title == "" {
		return &ValidationError{Reason: "title cannot be empty"}
	}
	s.mutateConversation(conversationID, func(conv Conversation) (Conversation, bool) {
		if conv.Title == title {
			return conv, false
		}
		conv.Title = title
		return conv, true
	})
	return nil
}

// Restore installs a previously persisted collection. An empty collection
// is ignored so the store never ends up without conversations. If the
// active id is unknown the last conversation becomes active.
func (s *Store) Restore(loaded Snapshot) {
	if len(loaded.Conversations) == 0 {
		return
	}
	s.update(func(prev Snapshot) (Snapshot, bool, error) {
		next := Snapshot{
			ActiveID:      loaded.ActiveID,
			Conversations: slices.Clone(loaded.Conversations),
		}
		if next.index(next.ActiveID) < 0 {
			next.ActiveID = next.Conversations[len(next.Conversations)-1].ID
		}
		return next, true, nil
	})
}

func (s *Store) mutateConversation(id string, fn func(Conversation) (Conversation, bool)) {
	s.update(func(prev Snapshot) (Snapshot, bool, error) {
		i := prev.index(id)
		if i < 0 {
			return prev, false, nil
		}
		conv, changed := fn(prev.Conversations[i])
		if !changed {
			return prev, false, nil
		}
		next := prev
		next.Conversations = slices.Clone(prev.Conversations)
		next.Conversations[i] = conv
		return next, true, nil
	})
}

// update applies fn to the current snapshot and publishes the result
func (s *Store) update(fn func(Snapshot) (Snapshot, bool, error)) error {
	s.mu.Lock()
	next, changed, err := fn(s.snap)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	next.Version = s.snap.Version + 1
	s.snap = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return nil
}
