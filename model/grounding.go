package model

// GroundingHolder attaches uploaded document text to conversations.
// It keeps no state of its own; the Store owns the data.
type GroundingHolder struct {
	store *Store
}

func NewGroundingHolder(store *Store) *GroundingHolder {
	return &GroundingHolder{store: store}
}

// Attach replaces the conversation's grounding context
func (h *GroundingHolder) Attach(conversationID string, ctx GroundingContext) {
	h.store.SetGroundingContext(conversationID, &ctx)
}

// Clear removes the conversation's grounding context
func (h *GroundingHolder) Clear(conversationID string) {
	h.store.SetGroundingContext(conversationID, nil)
}

// Get returns the grounding context of a conversation, if any
func (h *GroundingHolder) Get(conversationID string) (GroundingContext, bool) {
	conv, ok := h.store.Get(conversationID)
	if !ok || conv.Grounding == nil {
		return GroundingContext{}, false
	}
	return *conv.Grounding, true
}

// FullText returns the text sent with requests, or nil when nothing is attached.
// The text is never truncated here; that is the backend's concern.
func (h *GroundingHolder) FullText(conversationID string) *string {
	ctx, ok := h.Get(conversationID)
	if !ok || ctx.FullText == "" {
		return nil
	}
	text := ctx.FullText
	return &text
}
