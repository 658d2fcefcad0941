package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the API has one
// success shape per route and one error shape overall:
//
//	{"error": "not_found", "message": "user not found with id 42"}

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/user-portal/internal/apperror"
)

// maxBodyBytes caps request bodies. User payloads are a few hundred bytes.
const maxBodyBytes = 1 << 20

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable, e.g. "not_found"
	Message string `json:"message"` // human-readable
	Field   string `json:"field,omitempty"`
}

// MessageResponse is the body of delete and logout.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sets the header, then the status, then writes the body. Headers
// changed after the first Write are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to a status code.
//
//	ErrValidation      → 400 validation_error
//	ErrConflict        → 400 conflict (duplicate email and friends)
//	ErrUnauthenticated → 401 unauthorized
//	ErrNotFound        → 404 not_found
//	anything else      → 500 internal_error
//
// 500s never carry the underlying message: it can contain SQL or hostnames.
// The detail goes to the log instead.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, code := classify(err)
		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{
				Error:   code,
				Message: appErr.Message,
				Field:   appErr.Field,
			})
			return
		}
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusBadRequest, "conflict"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads one JSON object from the body into dst.
//
// strict rejects fields dst does not declare, so a client cannot slip
// email or provider into a profile update.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body is empty")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("", "request body is too large")
		default:
			return apperror.ValidationFailed("", fmt.Sprintf("invalid request body: %v", err))
		}
	}

	if dec.More() {
		return apperror.ValidationFailed("", "request body must contain a single JSON object")
	}
	return nil
}
