package chat

import (
	"context"
	"fmt"
	"path/filepath"

	"nutribot/backend"
	"nutribot/model"
)

const removedDocumentText = "PDF removed. You can upload another one or carry on with the conversation."

// Uploading reports whether a document upload is in progress
func (c *Controller) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploading > 0
}

func (c *Controller) setUploading(conversationID string, delta int) {
	c.mu.Lock()
	c.uploading += delta
	uploading := c.uploading > 0
	c.mu.Unlock()
	c.emit(Event{ConversationID: conversationID, Uploading: uploading})
}

// UploadDocument sends the PDF at path to the backend and attaches its
// text to the conversation. Every outcome is reported inside the
// conversation; the returned error is informational. Files that are not
// PDFs are rejected before any network call.
func (c *Controller) UploadDocument(ctx context.Context, conversationID, path string) error {
	name := filepath.Base(path)
	if err := backend.ValidateDocumentName(name); err != nil {
		c.store.AppendMessage(conversationID, model.NewErrorMessage(err.Error()))
		return err
	}

	c.setUploading(conversationID, 1)
	defer c.setUploading(conversationID, -1)

	res, err := c.backend.UploadPDFFile(ctx, path)
	if err != nil {
		c.log.Warn().Err(err).Str("conversation_id", conversationID).Str("filename", name).Msg("upload failed")
		c.store.AppendMessage(conversationID, uploadErrorMessage(err))
		return err
	}

	c.grounding.Attach(conversationID, res.Grounding())
	c.store.AppendMessage(conversationID, model.NewBotMessage(fmt.Sprintf(
		"✅ PDF %q loaded. You can now ask me about its content.\n\nPreview: %s",
		res.Filename, res.Preview,
	)))

	c.log.Debug().
		Str("conversation_id", conversationID).
		Str("filename", res.Filename).
		Int("text_len", len(res.Text)).
		Msg("document attached")
	return nil
}

// RemoveDocument detaches the conversation's document
func (c *Controller) RemoveDocument(conversationID string) {
	if _, ok := c.grounding.Get(conversationID); !ok {
		return
	}
	c.grounding.Clear(conversationID)
	c.store.AppendMessage(conversationID, model.NewBotMessage(removedDocumentText))
}

func uploadErrorMessage(err error) model.Message {
	return model.NewErrorMessage("Error processing the PDF: " + describe(err))
}
