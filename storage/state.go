package storage

import (
	"errors"
	"fmt"

	"nutribot/model"
)

// State is what Load reads back from a BlobStore
type State struct {
	Snapshot model.Snapshot
	// Model is nil when no selection was ever saved
	Model *model.SelectedModel
}

// Load reads both documents. Missing documents are not errors. A document
// that cannot be decoded is skipped and reported in the returned error
// while the other one is still returned.
func Load(blobs BlobStore) (State, error) {
	var state State
	var errs []error

	data, err := blobs.Get(ConversationsKey)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		errs = append(errs, fmt.Errorf("failed to load conversations: %w", err))
	default:
		snap, err := DecodeConversations(data)
		if err != nil {
			errs = append(errs, err)
		} else {
			state.Snapshot = snap
		}
	}

	data, err = blobs.Get(SelectedModelKey)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		errs = append(errs, fmt.Errorf("failed to load selected model: %w", err))
	default:
		m, err := DecodeSelectedModel(data)
		if err != nil {
			errs = append(errs, err)
		} else {
			state.Model = &m
		}
	}

	return state, errors.Join(errs...)
}
