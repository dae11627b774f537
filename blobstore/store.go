// Package blobstore abstracts where snapshot blobs live: a local directory,
// memory, or an S3-compatible object store.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations must return an error that satisfies
// errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("blob not found")

// Store is an abstraction for reading and writing immutable snapshot blobs.
type Store interface {
	// Put writes a blob atomically: a partially written blob is never
	// observable under name.
	Put(ctx context.Context, name string, r io.Reader) error

	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
