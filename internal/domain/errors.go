package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates malformed or missing request input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIndexBuild indicates a reindex attempt failed. The previously
	// served index is left in place.
	ErrIndexBuild = errors.New("index build failed")

	// ErrEmbeddingService indicates the embedding API failed, timed out or
	// rate limited the request.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrCompletionService indicates the completion API failed, timed out or
	// rate limited the request.
	ErrCompletionService = errors.New("completion service error")
)

// LoadError reports a single source file that could not be loaded. It is
// never fatal to a load.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
