package auth

import "errors"

// Sentinel errors for auth operations.
var (
	ErrInvalidKey    = errors.New("auth: invalid api key")
	ErrMalformedHash = errors.New("auth: malformed key hash")
	ErrInvalidRole   = errors.New("auth: invalid role")
	ErrTokenInvalid  = errors.New("auth: invalid token")
	ErrForbidden     = errors.New("auth: insufficient permissions")
)
