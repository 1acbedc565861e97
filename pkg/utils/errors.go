package utils

import (
	"errors"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"
)

// Error codes returned in the envelope.
const (
	CodeValidation       = "validation_error"
	CodeAuthFailed       = "authentication_failed"
	CodeNotAuthenticated = "not_authenticated"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeRateLimited      = "rate_limited"
	CodeTooLarge         = "request_too_large"
	CodeInternal         = "internal_error"
)

// FieldErrors maps a request field to every message it failed with.
type FieldErrors map[string][]string

// Add appends a message for field.
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Empty reports whether no field has failed.
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Fields returns the failed field names in sorted order.
func (f FieldErrors) Fields() []string {
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// APIError is an error that knows how it is rendered over HTTP.
// Services return it for every failure a client is expected to see; anything
// else reaching RespondWithAPIError is treated as an internal error.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details FieldErrors
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches on Code so that errors.Is(err, utils.ErrNotFound) works for any
// not_found error regardless of message.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors shared across packages.
var (
	ErrNotFound = &APIError{
		Status:  http.StatusNotFound,
		Code:    CodeNotFound,
		Message: "Not found.",
	}
	ErrAuthenticationFailed = &APIError{
		Status:  http.StatusUnauthorized,
		Code:    CodeAuthFailed,
		Message: "No active account found with the given credentials",
	}
	ErrInvalidToken = &APIError{
		Status:  http.StatusUnauthorized,
		Code:    CodeAuthFailed,
		Message: "Token is invalid or expired",
	}
	ErrNotAuthenticated = &APIError{
		Status:  http.StatusUnauthorized,
		Code:    CodeNotAuthenticated,
		Message: "Authentication credentials were not provided.",
	}
	ErrForbidden = &APIError{
		Status:  http.StatusForbidden,
		Code:    CodeForbidden,
		Message: "You do not have permission to perform this action.",
	}
	ErrMethodNotAllowed = &APIError{
		Status:  http.StatusMethodNotAllowed,
		Code:    CodeMethodNotAllowed,
		Message: "Method not allowed.",
	}
	ErrBodyTooLarge = &APIError{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    CodeTooLarge,
		Message: "Request body is too large.",
	}
	ErrRateLimited = &APIError{
		Status:  http.StatusTooManyRequests,
		Code:    CodeRateLimited,
		Message: "Request was throttled.",
	}
)

// NewValidationError builds a 400 with an optional per-field detail map.
func NewValidationError(message string, details FieldErrors) *APIError {
	if message == "" {
		message = "Validation failed."
	}
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    CodeValidation,
		Message: message,
		Details: details,
	}
}

// FieldError is shorthand for a validation error on a single field.
func FieldError(field, message string) *APIError {
	return NewValidationError("", FieldErrors{field: {message}})
}

type errorBody struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   FieldErrors `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// RespondWithAPIError renders err in the error envelope:
//
//	{"error": {"code": "...", "message": "...", "details": {...}}}
//
// It is the single place where failures become HTTP responses. Errors that do
// not wrap an *APIError are logged and reported as internal_error without
// leaking their text.
func RespondWithAPIError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		log.Error().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Unhandled error")
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    CodeInternal,
			Message: "A server error occurred.",
		}
	}

	RespondWithJSON(w, r, apiErr.Status, errorEnvelope{
		Error: errorBody{
			Code:      apiErr.Code,
			Message:   apiErr.Message,
			Details:   apiErr.Details,
			RequestID: GetRequestID(r.Context()),
		},
	})
}

// RespondWithError renders an ad-hoc error for the given status, choosing the
// code from the status.
func RespondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	RespondWithAPIError(w, r, &APIError{
		Status:  statusCode,
		Code:    codeForStatus(statusCode),
		Message: message,
	})
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeAuthFailed
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case http.StatusRequestEntityTooLarge:
		return CodeTooLarge
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
