package main

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Failure taxonomy for the token service. Handlers map these to HTTP
// statuses; anything else coming out of the service is a store fault
// and surfaces as a 500.
var (
	// ErrUnauthorized covers bad login credentials. It never says
	// whether the email or the password was wrong.
	ErrUnauthorized = errors.New("invalid credentials")
	// ErrForbidden covers every token failure: missing, malformed,
	// expired, wrong key, or absent from the store. Deliberately
	// uniform so callers cannot probe which check failed.
	ErrForbidden = errors.New("invalid or expired token")
	// ErrNotFound means the user referenced by a valid token no
	// longer exists.
	ErrNotFound = errors.New("user not found")
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}
