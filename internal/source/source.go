// Package source provides event-file source abstractions for the pipeline.
package source

import (
	"context"
	"errors"
)

// Common errors for source operations.
var (
	ErrFileNotFound = errors.New("source file not found")
	ErrListFailed   = errors.New("source listing failed")
	ErrReadFailed   = errors.New("source read failed")
)

// FileInfo describes one candidate event file.
type FileInfo struct {
	// ID is the stable identifier used for checkpointing: a slash-separated
	// path relative to the source root (local) or the object key (S3).
	ID string

	// Size is the file size in bytes.
	Size int64
}

// Source abstracts where event files come from.
// Implementations include a local directory and an S3 bucket/prefix.
type Source interface {
	// List returns all candidate event files in lexicographic order by ID,
	// so repeated runs over a static source are reproducible.
	List(ctx context.Context) ([]FileInfo, error)

	// Read returns the raw bytes of one event file.
	Read(ctx context.Context, id string) ([]byte, error)
}
