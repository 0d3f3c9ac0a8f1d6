package chat

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"nutribot/backend"
	"nutribot/model"
)

// step is one scripted result of fakeStream.Next
type step struct {
	unit string
	err  error
}

// fakeStream hands out units pushed by the test through steps. Closing
// steps signals end of data.
type fakeStream struct {
	ctx    context.Context
	steps  chan step
	closed atomic.Int32
}

func (s *fakeStream) Next() (string, error) {
	select {
	case st, ok := <-s.steps:
		if !ok {
			return "", io.EOF
		}
		if st.err != nil {
			return "", st.err
		}
		return st.unit, nil
	case <-s.ctx.Done():
		return "", &model.TransportError{Op: "chat", Err: s.ctx.Err()}
	}
}

func (s *fakeStream) Close() error {
	s.closed.Add(1)
	return nil
}

// fakeBackend records requests and returns scripted streams
type fakeBackend struct {
	mu       sync.Mutex
	requests []backend.ChatRequest
	streams  []*fakeStream
	openErr  error
	opened   chan *fakeStream

	uploadCalls int
	uploadFunc  func(filename string, r io.Reader) (*backend.UploadResult, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{opened: make(chan *fakeStream, 16)}
}

func (b *fakeBackend) OpenChat(ctx context.Context, req backend.ChatRequest) (backend.UnitStream, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	openErr := b.openErr
	b.mu.Unlock()

	if openErr != nil {
		return nil, openErr
	}
	s := &fakeStream{ctx: ctx, steps: make(chan step, 64)}
	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()
	b.opened <- s
	return s, nil
}

// UploadPDFFile opens path like the real client and counts only uploads
// that got as far as the network
func (b *fakeBackend) UploadPDFFile(ctx context.Context, path string) (*backend.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b.mu.Lock()
	b.uploadCalls++
	fn := b.uploadFunc
	b.mu.Unlock()
	return fn(filepath.Base(path), f)
}

func (b *fakeBackend) lastRequest() backend.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

// harness wires a controller to a fresh store and fake backend
type harness struct {
	store     *model.Store
	grounding *model.GroundingHolder
	selection *model.Selection
	backend   *fakeBackend
	ctrl      *Controller
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	store := model.NewStore("")
	grounding := model.NewGroundingHolder(store)
	selection := model.NewSelection(model.DefaultModel())
	fb := newFakeBackend()
	opts.Logger = zerolog.Nop()
	ctrl := NewController(store, grounding, selection, fb, opts)
	t.Cleanup(ctrl.Shutdown)
	return &harness{
		store:     store,
		grounding: grounding,
		selection: selection,
		backend:   fb,
		ctrl:      ctrl,
	}
}

// botMessages returns the bot messages of a conversation, greeting excluded
func botMessages(conv model.Conversation) []model.Message {
	var out []model.Message
	for _, msg := range conv.Messages[1:] {
		if msg.Sender == model.SenderBot {
			out = append(out, msg)
		}
	}
	return out
}

// textRecorder collects every text value the given message takes in the store
type textRecorder struct {
	mu    sync.Mutex
	texts []string
}

func recordTexts(store *model.Store, conversationID string, messageID func() string) *textRecorder {
	rec := &textRecorder{}
	store.Subscribe(func(snap model.Snapshot) {
		conv, ok := snap.Find(conversationID)
		if !ok {
			return
		}
		msg, ok := conv.FindMessage(messageID())
		if !ok {
			return
		}
		rec.mu.Lock()
		defer rec.mu.Unlock()
		if n := len(rec.texts); n == 0 || rec.texts[n-1] != msg.Text {
			rec.texts = append(rec.texts, msg.Text)
		}
	})
	return rec
}

func (r *textRecorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}
