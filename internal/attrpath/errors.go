package attrpath

import "errors"

// Domain errors for the attrpath package.
var (
	// ErrInvalidPath is returned when a path is empty, has an empty segment,
	// or still contains an unsubstituted placeholder where a concrete path is required.
	ErrInvalidPath = errors.New("attrpath: invalid path")

	// ErrPathNotFound is returned when a path does not exist in a document.
	// It is an expected condition: a declared path may be absent from a payload.
	ErrPathNotFound = errors.New("attrpath: path not found")

	// ErrNotContainer is returned when a document root is a scalar rather
	// than a mapping or sequence.
	ErrNotContainer = errors.New("attrpath: document is not a container")
)
