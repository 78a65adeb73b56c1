// Package storage persists chunk sequences as single-file SQLite artifacts.
//
// A chunk artifact holds one ordered sequence of chunks. It is always written whole:
// the database is built in a temporary file and renamed over the target, so readers
// never observe a partially written sequence. Relevance scores are never stored.
package storage

import (
	"errors"
	"io/fs"
)

// ErrNotFound is returned when a chunk artifact does not exist. It wraps fs.ErrNotExist.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string        { return "chunk artifact not found" }
func (notFoundError) Is(target error) bool { return target == fs.ErrNotExist }

// IsNotFound reports whether err means the artifact is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
