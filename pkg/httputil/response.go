// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Codes for errors that do not come from pkg/family
const (
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal_error"
	CodeUnavailable = "unavailable"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorCode writes {"error": message, "code": code}
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

// StatusFor maps an error to its HTTP status by family error kind
func StatusFor(err error) int {
	switch family.KindOf(err) {
	case family.KindValidation:
		return http.StatusBadRequest
	case family.KindNotFound:
		return http.StatusNotFound
	case family.KindAuthorization:
		return http.StatusForbidden
	case family.KindAuthentication:
		return http.StatusUnauthorized
	case family.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// WriteError writes err with the status of its kind. Errors without a kind
// are reported as internal errors and their text is not exposed.
func WriteError(w http.ResponseWriter, err error) {
	var fe *family.Error
	if !errors.As(err, &fe) {
		WriteInternalError(w)
		return
	}
	WriteErrorCode(w, StatusFor(err), fe.Code, err.Error())
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="familyaccess"`)
	WriteErrorCode(w, http.StatusUnauthorized, family.ErrUnauthenticated.Code, message)
}

// WriteForbidden writes a forbidden error (403) with a machine readable reason
func WriteForbidden(w http.ResponseWriter, reason, message string) {
	WriteErrorCode(w, http.StatusForbidden, reason, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteErrorCode(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusServiceUnavailable, CodeUnavailable, message)
}

// WriteInternalError writes a generic internal server error (500)
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}
