// Package storage persists client state as opaque values under string keys.
// The values are JSON documents produced by the codec in this package.
package storage

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Get for a key that was never written
var ErrNotFound = errors.New("key not found")

// BlobStore is a key-value store for whole documents
type BlobStore interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Close() error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func checkKey(key string) error {
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
