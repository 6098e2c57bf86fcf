// Package storage abstracts export destinations. Export jobs write through a
// Sink so the pipeline is identical for a local directory and an object
// store, including the cancel path that removes a partial artifact.
package storage

import (
	"context"
	"io"
)

// Sink is one export destination backend.
type Sink interface {
	// Create returns a writer streaming to the destination object. The
	// channel receives exactly one error (or nil) once the backend has
	// durably finished the object; callers wait on it after Close.
	Create(ctx context.Context, key string) (io.WriteCloser, <-chan error)

	// Open reads a stored object back.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Remove deletes a stored object. Removing a missing object is not an
	// error; the cancel path calls this without knowing how far the writer
	// got.
	Remove(ctx context.Context, key string) error

	// URL renders a caller-facing locator for the object.
	URL(key string) string
}
