package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutribot/backend"
	"nutribot/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func lastMessage(t *testing.T, h *harness, convID string) model.Message {
	t.Helper()
	conv, ok := h.store.Get(convID)
	require.True(t, ok)
	return conv.Messages[len(conv.Messages)-1]
}

func TestUploadRejectsNonPDFWithoutNetwork(t *testing.T) {
	h := newHarness(t, Options{})
	convID := h.store.ActiveID()

	for _, name := range []string{"notes.txt", "scan.PDF", "pdf"} {
		err := h.ctrl.UploadDocument(context.Background(), convID, writeFile(t, name, "x"))
		var validation *model.ValidationError
		require.ErrorAs(t, err, &validation, name)

		msg := lastMessage(t, h, convID)
		assert.True(t, msg.IsError)
		assert.Equal(t, "Please upload PDF files only.", msg.Text)
	}

	assert.Zero(t, h.backend.uploadCalls)
	_, attached := h.grounding.Get(convID)
	assert.False(t, attached)
}

func TestUploadAttachesGrounding(t *testing.T) {
	h := newHarness(t, Options{})
	convID := h.store.ActiveID()

	var uploadingSeen bool
	h.ctrl.OnEvent(func(ev Event) {
		if ev.Uploading {
			uploadingSeen = true
		}
	})

	h.backend.uploadFunc = func(filename string, r io.Reader) (*backend.UploadResult, error) {
		body, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 fake", string(body))
		assert.True(t, h.ctrl.Uploading())
		return &backend.UploadResult{
			Success:  true,
			Filename: filename,
			Text:     "Vitamin C: 90mg per day",
			Preview:  "Vitamin C",
		}, nil
	}

	err := h.ctrl.UploadDocument(context.Background(), convID, writeFile(t, "diet.pdf", "%PDF-1.4 fake"))
	require.NoError(t, err)
	assert.Equal(t, 1, h.backend.uploadCalls)
	assert.True(t, uploadingSeen)
	assert.False(t, h.ctrl.Uploading())

	ctx, ok := h.grounding.Get(convID)
	require.True(t, ok)
	assert.Equal(t, model.GroundingContext{SourceName: "diet.pdf", FullText: "Vitamin C: 90mg per day", PreviewText: "Vitamin C"}, ctx)

	msg := lastMessage(t, h, convID)
	assert.Equal(t, model.SenderBot, msg.Sender)
	assert.False(t, msg.IsError)
	assert.Contains(t, msg.Text, `"diet.pdf"`)
	assert.Contains(t, msg.Text, "Preview: Vitamin C")
}

func TestUploadFailureReportsInConversation(t *testing.T) {
	h := newHarness(t, Options{})
	convID := h.store.ActiveID()
	h.grounding.Attach(convID, model.GroundingContext{SourceName: "old.pdf", FullText: "old"})

	h.backend.uploadFunc = func(string, io.Reader) (*backend.UploadResult, error) {
		return nil, &model.TransportError{Op: "upload", StatusCode: http.StatusBadRequest, Err: errors.New("Only PDF files are supported")}
	}

	err := h.ctrl.UploadDocument(context.Background(), convID, writeFile(t, "doc.pdf", "x"))
	require.Error(t, err)

	msg := lastMessage(t, h, convID)
	assert.True(t, msg.IsError)
	assert.Equal(t, "Error processing the PDF: HTTP 400: Only PDF files are supported", msg.Text)

	ctx, ok := h.grounding.Get(convID)
	require.True(t, ok, "previous document stays attached")
	assert.Equal(t, "old.pdf", ctx.SourceName)
	assert.False(t, h.ctrl.Uploading())
}

func TestUploadMissingFile(t *testing.T) {
	h := newHarness(t, Options{})
	convID := h.store.ActiveID()

	err := h.ctrl.UploadDocument(context.Background(), convID, filepath.Join(t.TempDir(), "gone.pdf"))
	require.Error(t, err)
	assert.Zero(t, h.backend.uploadCalls)
	assert.True(t, lastMessage(t, h, convID).IsError)
}

func TestRemoveDocument(t *testing.T) {
	h := newHarness(t, Options{})
	convID := h.store.ActiveID()

	h.ctrl.RemoveDocument(convID)
	conv, _ := h.store.Get(convID)
	assert.Len(t, conv.Messages, 1, "nothing attached, nothing to report")

	h.grounding.Attach(convID, model.GroundingContext{SourceName: "a.pdf", FullText: "text"})
	h.ctrl.RemoveDocument(convID)

	_, ok := h.grounding.Get(convID)
	assert.False(t, ok)
	assert.Nil(t, h.grounding.FullText(convID))
	assert.Equal(t, removedDocumentText, lastMessage(t, h, convID).Text)
}
