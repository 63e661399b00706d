package types

import (
	"errors"
	"fmt"
)

// Index errors
var (
	// ErrNotInitialized is returned by queries issued before initialization completed
	ErrNotInitialized = errors.New("index not initialized")
	// ErrParse marks a structural parse failure; it degrades to an empty symbol list
	ErrParse = errors.New("parse failed")
	// ErrBackend marks an embedding or parse capability failure
	ErrBackend = errors.New("backend failure")
	// ErrInvalidPath marks an update or delete on an untracked path
	ErrInvalidPath = errors.New("path is not tracked")
)

// Search result errors, returned by SearchResult.Validate
var (
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("structural score must be between 0 and 1")
	ErrMissingFileInfo       = errors.New("file path is required")
)

// ReadError reports a file that vanished or could not be read between
// enumeration and read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
