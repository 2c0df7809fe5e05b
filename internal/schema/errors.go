package schema

import "errors"

// Domain errors for the schema package.
var (
	// ErrInvalidEntry is returned when a catalog entry has a malformed template,
	// a placeholder its template does not contain, or an unknown kind.
	ErrInvalidEntry = errors.New("schema: invalid entry")

	// ErrDuplicateEntry is returned when two entries share a template.
	ErrDuplicateEntry = errors.New("schema: duplicate entry")

	// ErrUnknownCommand is returned when a logical command name has no path.
	ErrUnknownCommand = errors.New("schema: unknown command")
)
