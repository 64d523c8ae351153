package server

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// MessageResponse carries a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

const (
	msgInvalidCredentials = "Invalid credentials"
	msgUnauthenticated    = "Invalid or expired session"
	msgLogoutSuccess      = "Successfully logged out"
	msgLogoutFailed       = "Logout failed"
	msgResetSent          = "If the account exists, a password reset email has been sent"
	msgRegistrationFailed = "Registration failed"
	msgOAuthFailed        = "OAuth authentication failed"
	msgProviderDown       = "Authentication service unavailable"
	msgNotConfigured      = "Authentication provider not configured"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func writeBadRequest(w http.ResponseWriter, message string, details map[string]string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "bad_request",
		Message: message,
		Details: details,
	})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = msgUnauthenticated
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}

func writeInternalError(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Internal server error"
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: message,
	})
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
		Error:   "unavailable",
		Message: message,
	})
}
