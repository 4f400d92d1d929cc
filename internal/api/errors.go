package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/dkn-cloud-bridge/internal/cloud"
	"github.com/nerrad567/dkn-cloud-bridge/internal/engine"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeBridgeUnavailable  = "bridge_unavailable"
	ErrCodeCloudUnreachable   = "cloud_unreachable"
	ErrCodeAuthExpired        = "cloud_auth_expired"
	ErrCodeInternal           = "internal_error"
	ErrCodeUnsupportedCommand = "unsupported_command"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeCommandError maps engine and cloud errors onto HTTP responses so
// clients can tell a bad request from a cloud-side failure.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownDevice):
		writeNotFound(w, err.Error())
	case errors.Is(err, engine.ErrInvalidCommand),
		errors.Is(err, engine.ErrUnsupportedMode),
		errors.Is(err, engine.ErrControlUnavailable):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupportedCommand, err.Error())
	case errors.Is(err, cloud.ErrDeviceBridgeUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeBridgeUnavailable, err.Error())
	case errors.Is(err, cloud.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, err.Error())
	case errors.Is(err, cloud.ErrAuthExpired), errors.Is(err, cloud.ErrInvalidCredentials):
		writeError(w, http.StatusBadGateway, ErrCodeAuthExpired, err.Error())
	case errors.Is(err, cloud.ErrUnreachable):
		writeError(w, http.StatusBadGateway, ErrCodeCloudUnreachable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
