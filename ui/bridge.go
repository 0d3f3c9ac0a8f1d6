package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"nutribot/chat"
	"nutribot/model"
)

// Sender is the part of *tea.Program the bridge needs
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards store snapshots and controller events into a running
// program. Listeners only queue and return, so a mutation made from inside
// Update never waits on the program's message loop.
type Bridge struct {
	mu     sync.Mutex
	snap   *model.Snapshot
	events []chat.Event

	wake        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	unsubscribe func()
}

func NewBridge(store *model.Store, ctrl *chat.Controller) *Bridge {
	b := &Bridge{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	b.unsubscribe = store.Subscribe(b.queueSnapshot)
	ctrl.OnEvent(b.queueEvent)
	return b
}

func (b *Bridge) queueSnapshot(snap model.Snapshot) {
	b.mu.Lock()
	if b.snap == nil || snap.Version > b.snap.Version {
		b.snap = &snap
	}
	b.mu.Unlock()
	b.signal()
}

func (b *Bridge) queueEvent(ev chat.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
	b.signal()
}

func (b *Bridge) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued messages to p until Stop is called
func (b *Bridge) Run(p Sender) {
	for {
		select {
		case <-b.wake:
			b.deliver(p)
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) deliver(p Sender) {
	b.mu.Lock()
	snap, events := b.snap, b.events
	b.snap, b.events = nil, nil
	b.mu.Unlock()

	// The snapshot goes first so events render against fresh data.
	if snap != nil {
		p.Send(storeChangedMsg{snap: *snap})
	}
	for _, ev := range events {
		p.Send(chatEventMsg{event: ev})
	}
}

func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.unsubscribe()
		close(b.done)
	})
}
