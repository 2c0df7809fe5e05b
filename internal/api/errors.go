package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/poller"
	"github.com/nerrad567/que-core/internal/schema"
	"github.com/nerrad567/que-core/internal/system"
)

// Error is the body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeUpstream       = "upstream_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; the client may be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeCommandError maps command build and send failures to responses:
// 404 unknown system or path, 409 read-only attribute, 422 value or
// request that does not fit, 502 cloud rejected the send.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, poller.ErrUnknownSystem),
		errors.Is(err, system.ErrAttributeNotFound),
		errors.Is(err, system.ErrZoneOutOfRange):
		writeNotFound(w, err.Error())
	case errors.Is(err, system.ErrImmutableAttribute):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, attribute.ErrTypeCoercion),
		errors.Is(err, attribute.ErrUnsupportedValue),
		errors.Is(err, schema.ErrUnknownCommand),
		errors.Is(err, poller.ErrInvalidRequest):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, system.ErrNoCommandSink):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	}
}
