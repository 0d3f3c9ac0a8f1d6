package model

import "github.com/google/uuid"

// NewID returns a time-ordered identifier. UUIDv7 values generated by one
// process are monotonic, so ids sort in creation order and are never reused.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
