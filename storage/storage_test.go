package storage

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutribot/model"
)

func blobStores(t *testing.T) map[string]BlobStore {
	t.Helper()
	dir := t.TempDir()

	files, err := NewFileStore(filepath.Join(dir, "state"))
	require.NoError(t, err)
	db, err := NewSQLiteStore(filepath.Join(dir, "nutribot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	bolt, err := NewBoltStore(filepath.Join(dir, "nutribot.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]BlobStore{"file": files, "sqlite": db, "bolt": bolt}
}

func TestBlobStores(t *testing.T) {
	for name, bs := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := bs.Get("missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, bs.Put("k", []byte(`{"a":1}`)))
			got, err := bs.Get("k")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(got))

			require.NoError(t, bs.Put("k", []byte(`{"a":2}`)))
			got, err = bs.Get("k")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))

			assert.Error(t, bs.Put("../escape", []byte("x")))
			_, err = bs.Get("a/b")
			assert.Error(t, err)
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, fs.Put(ConversationsKey, []byte("[]")))

	info, err := os.Stat(filepath.Join(dir, ConversationsKey+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nutribot.db")
	db, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, db.Put(SelectedModelKey, []byte(`{"id":"x"}`)))
	require.NoError(t, db.Close())

	db, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Get(SelectedModelKey)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"x"}`, string(got))
}

func TestBoltStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "nutribot.bolt")
	db, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, db.Put(ConversationsKey, []byte(`{"schema_version":1}`)))
	require.NoError(t, db.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	db, err = NewBoltStore(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Get(ConversationsKey)
	require.NoError(t, err)
	assert.Equal(t, `{"schema_version":1}`, string(got))
}

func populatedStore(t *testing.T) *model.Store {
	t.Helper()
	store := model.NewStore("")
	first := store.ActiveID()
	store.AppendMessage(first, model.NewUserMessage("¿Qué como hoy? 🥗"))
	store.AppendMessage(first, model.NewBotMessage("Una ensalada"))
	store.AppendMessage(first, model.NewErrorMessage("⚠️ Error: HTTP 500: boom"))
	store.SetGroundingContext(first, &model.GroundingContext{SourceName: "menu.pdf", FullText: "full", PreviewText: "prev"})
	store.Create()
	store.Select(first)
	return store
}

func TestConversationsRoundTrip(t *testing.T) {
	store := populatedStore(t)
	snap := store.Snapshot()

	data, err := EncodeConversations(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"schema_version":1`)

	decoded, err := DecodeConversations(data)
	require.NoError(t, err)
	assert.Equal(t, snap.ActiveID, decoded.ActiveID)
	require.Len(t, decoded.Conversations, len(snap.Conversations))
	for i, conv := range snap.Conversations {
		got := decoded.Conversations[i]
		assert.Equal(t, conv.ID, got.ID)
		assert.Equal(t, conv.Title, got.Title)
		assert.Equal(t, conv.Grounding, got.Grounding)
		assert.True(t, conv.CreatedAt.Equal(got.CreatedAt))
		require.Len(t, got.Messages, len(conv.Messages))
		for j, msg := range conv.Messages {
			assert.Equal(t, msg.ID, got.Messages[j].ID)
			assert.Equal(t, msg.Text, got.Messages[j].Text)
			assert.Equal(t, msg.Sender, got.Messages[j].Sender)
			assert.Equal(t, msg.IsError, got.Messages[j].IsError)
			assert.True(t, msg.Timestamp.Equal(got.Messages[j].Timestamp))
		}
	}
}

func TestDecodeRejectsNewerSchema(t *testing.T) {
	_, err := DecodeConversations([]byte(`{"schema_version":2,"conversations":[]}`))
	var unsupported *UnsupportedVersionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, 2, unsupported.Version)
}

func TestDecodeLegacyArray(t *testing.T) {
	legacy := `[
	  {"id": 1, "title": "Conversación 1", "createdAt": "2024-05-01T10:00:00.000Z",
	   "messages": [{"id": 1, "text": "¡Hola!", "sender": "bot", "timestamp": "2024-05-01T10:00:00.000Z"}]},
	  {"id": 1716000000000, "title": "Dieta", "createdAt": "2024-05-18T02:40:00.000Z",
	   "pdfContext": {"filename": "dieta.pdf", "text": "texto", "preview": "tex"},
	   "messages": [
	     {"id": 1716000000001, "text": "hola", "sender": "user", "timestamp": "2024-05-18T02:40:01.000Z"},
	     {"id": 1716000000001, "text": "⚠️ Error: x", "sender": "bot", "isError": true, "timestamp": "2024-05-18T02:40:02.000Z"}
	   ]}
	]`

	snap, err := DecodeConversations([]byte(legacy))
	require.NoError(t, err)
	require.Len(t, snap.Conversations, 2)

	assert.Equal(t, "1", snap.Conversations[0].ID)
	assert.Equal(t, "1716000000000", snap.Conversations[1].ID)
	assert.Equal(t, snap.Conversations[1].ID, snap.ActiveID, "most recent conversation is active")
	assert.Equal(t, "dieta.pdf", snap.Conversations[1].Grounding.SourceName)

	msgs := snap.Conversations[1].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "1716000000001", msgs[0].ID)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID, "repeated ids are replaced")
	assert.True(t, msgs[1].IsError)
	assert.Equal(t, time.Date(2024, 5, 18, 2, 40, 2, 0, time.UTC), msgs[1].Timestamp)
}

func TestDecodeSelectedModel(t *testing.T) {
	m, err := DecodeSelectedModel([]byte(`{"id":"llama-3.3-70b-versatile","name":"old label","type":"api","provider":"Groq Cloud"}`))
	require.NoError(t, err)
	assert.Equal(t, "Llama 3.3 70B (Groq)", m.DisplayName, "catalog entry wins")

	m, err = DecodeSelectedModel([]byte(`{"id":"custom","name":"Custom","type":"local","provider":"lab"}`))
	require.NoError(t, err)
	assert.Equal(t, "Custom", m.DisplayName)

	_, err = DecodeSelectedModel([]byte(`{}`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	for name, bs := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			state, err := Load(bs)
			require.NoError(t, err, "missing documents are not errors")
			assert.Empty(t, state.Snapshot.Conversations)
			assert.Nil(t, state.Model)

			require.NoError(t, bs.Put(ConversationsKey, []byte("{not json")))
			require.NoError(t, bs.Put(SelectedModelKey, []byte(`{"id":"llama3.2:1b"}`)))

			state, err = Load(bs)
			require.Error(t, err)
			assert.Empty(t, state.Snapshot.Conversations)
			require.NotNil(t, state.Model, "a corrupt document does not hide the other one")
			assert.Equal(t, "llama3.2:1b", state.Model.ID)
		})
	}
}

// countingStore records every write
type countingStore struct {
	BlobStore
	mu     sync.Mutex
	writes map[string][][]byte
	gate   chan struct{}
}

func (c *countingStore) Put(key string, value []byte) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	c.writes[key] = append(c.writes[key], value)
	c.mu.Unlock()
	return c.BlobStore.Put(key, value)
}

func (c *countingStore) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes[key])
}

func newCountingStore(t *testing.T) *countingStore {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return &countingStore{BlobStore: fs, writes: make(map[string][][]byte)}
}

func TestPersisterWritesLatestState(t *testing.T) {
	blobs := newCountingStore(t)
	store := model.NewStore("")
	selection := model.NewSelection(model.DefaultModel())
	p := NewPersister(blobs, store, selection, zerolog.Nop())

	id := store.ActiveID()
	for i := 0; i < 50; i++ {
		store.AppendMessage(id, model.NewUserMessage(strings.Repeat("x", i+1)))
	}
	selection.Set(model.NextModel(selection.Get()))
	require.NoError(t, p.Close())

	assert.LessOrEqual(t, blobs.count(ConversationsKey), 50)

	state, err := Load(blobs)
	require.NoError(t, err)
	assert.Equal(t, store.Snapshot().Conversations[0].Messages, state.Snapshot.Conversations[0].Messages)
	require.NotNil(t, state.Model)
	assert.Equal(t, selection.Get(), *state.Model)

	// Mutations after Close are not written.
	before := blobs.count(ConversationsKey)
	store.Create()
	assert.Equal(t, before, blobs.count(ConversationsKey))
}

func TestPersisterCoalescesWhileWriting(t *testing.T) {
	blobs := newCountingStore(t)
	blobs.gate = make(chan struct{})
	store := model.NewStore("")
	p := NewPersister(blobs, store, model.NewSelection(model.DefaultModel()), zerolog.Nop())

	id := store.ActiveID()
	store.AppendMessage(id, model.NewUserMessage("first"))
	// The writer is now blocked on the gate; everything below coalesces.
	for i := 0; i < 10; i++ {
		store.AppendMessage(id, model.NewUserMessage("more"))
	}
	close(blobs.gate)
	require.NoError(t, p.Flush())
	require.NoError(t, p.Close())

	assert.LessOrEqual(t, blobs.count(ConversationsKey), 2)
	state, err := Load(blobs)
	require.NoError(t, err)
	assert.Len(t, state.Snapshot.Conversations[0].Messages, 12)
}

func TestPersisterIgnoresOlderSnapshots(t *testing.T) {
	blobs := newCountingStore(t)
	store := model.NewStore("")
	p := NewPersister(blobs, store, model.NewSelection(model.DefaultModel()), zerolog.Nop())
	defer p.Close()

	store.Create()
	newer := store.Snapshot()
	require.NoError(t, p.Flush())

	older := newer
	older.Version = newer.Version - 1
	older.Conversations = older.Conversations[:1]
	p.queueSnapshot(older)
	require.NoError(t, p.Flush())

	state, err := Load(blobs)
	require.NoError(t, err)
	assert.Len(t, state.Snapshot.Conversations, 2)
}

func TestExportConversation(t *testing.T) {
	store := populatedStore(t)
	conv, _ := store.Snapshot().Active()

	path := filepath.Join(t.TempDir(), "out", "conv.json")
	require.NoError(t, ExportConversation(conv, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"filename": "menu.pdf"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "What-foods-help", SanitizeFilename("What foods help?"))
	assert.Equal(t, "conversation", SanitizeFilename("../"))
	assert.Equal(t, 50, len([]rune(SanitizeFilename(strings.Repeat("ñ", 80)))))

	t.Setenv("HOME", "/home/u")
	t.Setenv("XDG_DOWNLOAD_DIR", "")
	path := GenerateExportPath("Conversation 1", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Equal(t, filepath.Join("/home/u", "Downloads", "nutribot-Conversation-1-20250102-030405.json"), path)
}

func TestInstanceLock(t *testing.T) {
	dir := t.TempDir()
	lock := NewInstanceLock(dir)

	locked, _, err := lock.Check()
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, lock.Acquire())
	locked, pid, err := lock.Check()
	require.NoError(t, err)
	assert.False(t, locked, "own lock does not block")
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "nutribot.lock"), []byte("garbage"), 0600))
	locked, _, err = lock.Check()
	require.NoError(t, err)
	assert.False(t, locked)
	assert.NoFileExists(t, filepath.Join(dir, "nutribot.lock"))

	require.NoError(t, lock.Acquire())
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}

func TestInstanceLockHeldByOtherProcess(t *testing.T) {
	dir := t.TempDir()
	lock := NewInstanceLock(dir)
	lockPath := filepath.Join(dir, "nutribot.lock")

	// The go test driver outlives this test
	ppid := os.Getppid()
	require.NoError(t, os.WriteFile(lockPath, []byte(strconv.Itoa(ppid)), 0600))
	locked, pid, err := lock.Check()
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, ppid, pid)
	assert.FileExists(t, lockPath)
}

func TestInstanceLockLeftByCrashedProcess(t *testing.T) {
	dir := t.TempDir()
	lock := NewInstanceLock(dir)
	lockPath := filepath.Join(dir, "nutribot.lock")

	// A child that already exited stands in for a crashed client
	child := exec.Command(os.Args[0], "-test.run=^$")
	require.NoError(t, child.Run())
	dead := child.ProcessState.Pid()

	require.NoError(t, os.WriteFile(lockPath, []byte(strconv.Itoa(dead)), 0600))
	locked, _, err := lock.Check()
	require.NoError(t, err)
	assert.False(t, locked)
	assert.NoFileExists(t, lockPath)

	require.NoError(t, lock.Acquire())
	locked, _, err = lock.Check()
	require.NoError(t, err)
	assert.False(t, locked)
}
