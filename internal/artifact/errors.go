package artifact

import "errors"

var (
	// ErrNotFound is returned when no version exists for the requested
	// artifact.
	ErrNotFound = errors.New("artifact not found")

	// ErrEmptyID is returned when an operation is attempted with an
	// empty artifact id.
	ErrEmptyID = errors.New("empty artifact id")
)
