package attribute

import "errors"

// Domain errors for the attribute package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, attribute.ErrTypeCoercion) {
//	    // skip this field, keep refreshing the rest
//	}
var (
	// ErrInvalidPath is returned when an attribute is created with an empty or malformed path.
	ErrInvalidPath = errors.New("attribute: invalid path")

	// ErrTypeCoercion is returned when a raw value cannot be converted to a declared kind.
	ErrTypeCoercion = errors.New("attribute: type coercion failed")

	// ErrUnsupportedValue is returned when a raw document value is not a JSON scalar.
	ErrUnsupportedValue = errors.New("attribute: unsupported value")

	// ErrInvalidDocument is returned when a document is not a tree of mappings and
	// sequences. It aborts the whole refresh.
	ErrInvalidDocument = errors.New("attribute: invalid document")

	// ErrUnknownKind is returned when a kind name is not recognised.
	ErrUnknownKind = errors.New("attribute: unknown kind")
)
