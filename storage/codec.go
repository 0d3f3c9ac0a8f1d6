package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"nutribot/model"
)

// Keys of the persisted documents
const (
	ConversationsKey = "nutribot_conversations"
	SelectedModelKey = "nutribot_selected_model"
)

// SchemaVersion is the version written by EncodeConversations. Version 0
// is the bare JSON array written by the browser client.
const SchemaVersion = 1

// UnsupportedVersionError is returned for documents written by a newer client
type UnsupportedVersionError struct {
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("conversations were saved with schema version %d, this build reads up to %d", e.Version, SchemaVersion)
}

type conversationsDocument struct {
	SchemaVersion int                  `json:"schema_version"`
	ActiveID      string               `json:"active_id"`
	Conversations []model.Conversation `json:"conversations"`
}

// EncodeConversations serializes a store snapshot
func EncodeConversations(snap model.Snapshot) ([]byte, error) {
	conversations := snap.Conversations
	if conversations == nil {
		conversations = []model.Conversation{}
	}
	data, err := json.Marshal(conversationsDocument{
		SchemaVersion: SchemaVersion,
		ActiveID:      snap.ActiveID,
		Conversations: conversations,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversations: %w", err)
	}
	return data, nil
}

// DecodeConversations parses either document version. The returned
// snapshot has Version 0.
func DecodeConversations(data []byte) (model.Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return decodeLegacyConversations(trimmed)
	}

	var doc conversationsDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to unmarshal conversations: %w", err)
	}
	if doc.SchemaVersion > SchemaVersion {
		return model.Snapshot{}, &UnsupportedVersionError{Version: doc.SchemaVersion}
	}
	return model.Snapshot{ActiveID: doc.ActiveID, Conversations: doc.Conversations}, nil
}

// The browser client stored numeric ids (milliseconds since the epoch)
type legacyMessage struct {
	ID        json.RawMessage `json:"id"`
	Text      string          `json:"text"`
	Sender    model.Sender    `json:"sender"`
	IsError   bool            `json:"isError"`
	Timestamp time.Time       `json:"timestamp"`
}

type legacyConversation struct {
	ID         json.RawMessage         `json:"id"`
	Title      string                  `json:"title"`
	Messages   []legacyMessage         `json:"messages"`
	PDFContext *model.GroundingContext `json:"pdfContext"`
	CreatedAt  time.Time               `json:"createdAt"`
}

func decodeLegacyConversations(data []byte) (model.Snapshot, error) {
	var legacy []legacyConversation
	if err := json.Unmarshal(data, &legacy); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to unmarshal legacy conversations: %w", err)
	}

	seen := make(map[string]bool)
	snap := model.Snapshot{Conversations: make([]model.Conversation, 0, len(legacy))}
	for _, lc := range legacy {
		conv := model.Conversation{
			ID:        uniqueID(lc.ID, seen),
			Title:     lc.Title,
			Grounding: lc.PDFContext,
			CreatedAt: lc.CreatedAt.UTC(),
			Messages:  make([]model.Message, 0, len(lc.Messages)),
		}
		msgSeen := make(map[string]bool)
		for _, lm := range lc.Messages {
			conv.Messages = append(conv.Messages, model.Message{
				ID:        uniqueID(lm.ID, msgSeen),
				Text:      lm.Text,
				Sender:    lm.Sender,
				IsError:   lm.IsError,
				Timestamp: lm.Timestamp.UTC(),
			})
		}
		snap.Conversations = append(snap.Conversations, conv)
	}
	// The browser client opened the most recent conversation.
	if n := len(snap.Conversations); n > 0 {
		snap.ActiveID = snap.Conversations[n-1].ID
	}
	return snap, nil
}

// uniqueID turns a string or numeric JSON id into a string, replacing
// missing or repeated ids with fresh ones
func uniqueID(raw json.RawMessage, seen map[string]bool) string {
	id := ""
	var s string
	var n json.Number
	switch {
	case json.Unmarshal(raw, &s) == nil:
		id = s
	case json.Unmarshal(raw, &n) == nil:
		if i, err := n.Int64(); err == nil {
			id = strconv.FormatInt(i, 10)
		} else {
			id = n.String()
		}
	}
	if id == "" || seen[id] {
		id = model.NewID()
	}
	seen[id] = true
	return id
}

// EncodeSelectedModel serializes the selected model
func EncodeSelectedModel(m model.SelectedModel) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selected model: %w", err)
	}
	return data, nil
}

// DecodeSelectedModel parses a persisted model. Known ids are refreshed
// from the catalog.
func DecodeSelectedModel(data []byte) (model.SelectedModel, error) {
	var m model.SelectedModel
	if err := json.Unmarshal(data, &m); err != nil {
		return model.SelectedModel{}, fmt.Errorf("failed to unmarshal selected model: %w", err)
	}
	if m.ID == "" {
		return model.SelectedModel{}, fmt.Errorf("selected model has no id")
	}
	if known, ok := model.LookupModel(m.ID); ok {
		return known, nil
	}
	return m, nil
}
