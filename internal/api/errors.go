package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// coreErrors maps server errors to responses; first match wins.
var coreErrors = []struct {
	target error
	status int
	code   string
}{
	{sesame.ErrUnknownTrigger, http.StatusNotFound, ErrCodeNotFound},
	{sesame.ErrUnknownLock, http.StatusNotFound, ErrCodeNotFound},
	{sesame.ErrInvalidLockState, http.StatusBadRequest, ErrCodeValidation},
	{sesame.ErrInvalidAddress, http.StatusBadRequest, ErrCodeValidation},
	{sesame.ErrNoSession, http.StatusConflict, ErrCodeConflict},
	{sesame.ErrFailed, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{sesame.ErrNotStarted, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{sesame.ErrDispatcherStopped, http.StatusServiceUnavailable, ErrCodeUnavailable},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v) //nolint:errcheck // Client may have gone away
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
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

// writeCoreError answers with the response mapped to err, or 500.
func writeCoreError(w http.ResponseWriter, err error) {
	for _, m := range coreErrors {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	writeInternalError(w, err.Error())
}
