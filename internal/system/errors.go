package system

import "errors"

// Domain errors for the system package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, system.ErrImmutableAttribute) {
//	    // reject the request, the refresh is unaffected
//	}
var (
	// ErrImmutableAttribute is returned when a command targets a read-only attribute.
	ErrImmutableAttribute = errors.New("system: attribute is immutable")

	// ErrAttributeNotFound is returned when a command targets a path that has
	// not been populated.
	ErrAttributeNotFound = errors.New("system: attribute not found")

	// ErrNoCommandSink is returned by Send when no command sender is configured.
	ErrNoCommandSink = errors.New("system: no command sink")

	// ErrZoneOutOfRange is returned for a zone index outside 0..MaxZones-1.
	ErrZoneOutOfRange = errors.New("system: zone index out of range")

	// ErrInvalidMode is returned when Options.Mode is not recognised.
	ErrInvalidMode = errors.New("system: invalid populate mode")
)
