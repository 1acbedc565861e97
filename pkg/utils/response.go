// Package utils provides HTTP response helpers, the API error envelope,
// request ID propagation, pagination and retry helpers shared by the
// handlers and middleware.
package utils

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if the context is nil or no request ID is present.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID stores the request ID in the context.
//
// Example:
//
//	ctx := utils.WithRequestID(r.Context(), uuid.New().String())
//	r = r.WithContext(ctx)
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RespondWithJSON sends a JSON response with the given status code and data.
//
// Example:
//
//	utils.RespondWithJSON(w, r, http.StatusOK, ping)
func RespondWithJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Msg("Failed to encode JSON response")
	}
}

// RespondWithMessage sends {"message": ...} with the given status code.
//
// Example:
//
//	utils.RespondWithMessage(w, r, http.StatusCreated, "User created successfully.")
func RespondWithMessage(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	RespondWithJSON(w, r, statusCode, map[string]string{"message": message})
}

// RespondNoContent writes a bare 204.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 64 << 10

// DecodeJSON decodes the request body into dst. A malformed body becomes a
// validation error and a body over MaxBodyBytes becomes ErrBodyTooLarge, so
// the caller can pass either straight to RespondWithAPIError.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if r.ContentLength > MaxBodyBytes {
		return ErrBodyTooLarge
	}

	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrBodyTooLarge
		}
		return NewValidationError("Malformed request body.", nil)
	}
	return nil
}
