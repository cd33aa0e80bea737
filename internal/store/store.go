// Package store defines where the relay directory cache lives between
// invocations. Implementations persist the serialized directory body together
// with the validator it was fetched with.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load and Touch when nothing has been cached yet.
var ErrNotFound = errors.New("no cached directory")

// Entry is one cached directory.
//
// Body and ETag are always written together: a stored ETag identifies exactly
// the Body it was saved with.
type Entry struct {
	// Body is the serialized relay list.
	Body []byte
	// ETag is the validator returned with Body, empty if the source sent none.
	ETag string
	// ModTime is the last time Body was confirmed current.
	ModTime time.Time
}

// Store persists a single Entry.
type Store interface {
	// Load returns the cached entry, or ErrNotFound.
	Load(ctx context.Context) (Entry, error)
	// Save replaces body, validator and modification time as one unit.
	Save(ctx context.Context, e Entry) error
	// Touch updates only the modification time, or returns ErrNotFound.
	Touch(ctx context.Context, t time.Time) error
}
