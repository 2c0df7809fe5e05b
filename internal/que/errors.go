package que

import "errors"

// Domain errors for the que package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, que.ErrAuthFailed) {
//	    // credentials rejected, do not retry
//	}
var (
	// ErrMissingCredentials is returned when username or password is empty.
	ErrMissingCredentials = errors.New("que: missing credentials")

	// ErrAuthFailed is returned when pairing or token refresh is rejected.
	ErrAuthFailed = errors.New("que: authentication failed")

	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("que: unexpected status")

	// ErrInvalidResponse is returned when a response body cannot be decoded.
	ErrInvalidResponse = errors.New("que: invalid response")

	// ErrSystemNotFound is returned when a serial is not known to the source.
	ErrSystemNotFound = errors.New("que: system not found")
)
