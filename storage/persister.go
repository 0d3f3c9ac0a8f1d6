package storage

import (
	"sync"

	"github.com/rs/zerolog"

	"nutribot/model"
)

// Persister writes the store and the model selection to a BlobStore after
// every change. Writes happen on one background goroutine and bursts of
// changes are coalesced: only the newest snapshot pending at the time of a
// write is stored, and a snapshot is never written after a newer one.
type Persister struct {
	blobs BlobStore
	log   zerolog.Logger

	mu           sync.Mutex
	pendingSnap  *model.Snapshot
	pendingModel *model.SelectedModel
	queued       uint64 // highest snapshot version accepted
	closed       bool
	lastErr      error

	wake        chan struct{}
	flush       chan chan error
	done        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

func NewPersister(blobs BlobStore, store *model.Store, selection *model.Selection, logger zerolog.Logger) *Persister {
	p := &Persister{
		blobs:   blobs,
		log:     logger.With().Str("component", "persister").Logger(),
		wake:    make(chan struct{}, 1),
		flush:   make(chan chan error),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	p.unsubscribe = store.Subscribe(p.queueSnapshot)
	selection.OnChange(p.queueModel)

	go p.loop()
	return p
}

func (p *Persister) queueSnapshot(snap model.Snapshot) {
	p.mu.Lock()
	if p.closed || snap.Version <= p.queued {
		p.mu.Unlock()
		return
	}
	p.queued = snap.Version
	p.pendingSnap = &snap
	p.mu.Unlock()
	p.signal()
}

func (p *Persister) queueModel(m model.SelectedModel) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pendingModel = &m
	p.mu.Unlock()
	p.signal()
}

func (p *Persister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Persister) loop() {
	defer close(p.stopped)
	for {
		select {
		case <-p.wake:
			p.writePending()
		case reply := <-p.flush:
			reply <- p.writePending()
		case <-p.done:
			p.writePending()
			return
		}
	}
}

// writePending stores whatever is queued and returns the first error
func (p *Persister) writePending() error {
	p.mu.Lock()
	snap, m := p.pendingSnap, p.pendingModel
	p.pendingSnap, p.pendingModel = nil, nil
	p.mu.Unlock()

	var firstErr error
	if snap != nil {
		if err := p.put(ConversationsKey, func() ([]byte, error) { return EncodeConversations(*snap) }); err != nil {
			firstErr = err
		} else {
			p.log.Debug().Uint64("version", snap.Version).Int("conversations", len(snap.Conversations)).Msg("conversations saved")
		}
	}
	if m != nil {
		if err := p.put(SelectedModelKey, func() ([]byte, error) { return EncodeSelectedModel(*m) }); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.mu.Lock()
	if firstErr != nil {
		p.lastErr = firstErr
	}
	p.mu.Unlock()
	return firstErr
}

func (p *Persister) put(key string, encode func() ([]byte, error)) error {
	data, err := encode()
	if err == nil {
		err = p.blobs.Put(key, data)
	}
	if err != nil {
		p.log.Error().Err(err).Str("key", key).Msg("failed to persist state")
	}
	return err
}

// Flush writes everything queued so far and returns the error of that
// write, if any
func (p *Persister) Flush() error {
	reply := make(chan error, 1)
	select {
	case p.flush <- reply:
		return <-reply
	case <-p.stopped:
		return nil
	}
}

// Err returns the last write error
func (p *Persister) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Close stops listening, writes the final state and waits for the writer
// to exit. It does not close the BlobStore.
func (p *Persister) Close() error {
	p.closeOnce.Do(func() {
		p.unsubscribe()
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)
	})
	<-p.stopped
	return p.Err()
}
