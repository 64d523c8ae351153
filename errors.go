package authgate

import (
	"errors"
	"fmt"
)

// ErrorCode represents verifier and key provider error categories.
type ErrorCode string

const (
	ErrCodeMalformedToken    ErrorCode = "malformed_token"
	ErrCodeInvalidSignature  ErrorCode = "invalid_signature"
	ErrCodeExpired           ErrorCode = "token_expired"
	ErrCodeNotYetValid       ErrorCode = "token_not_yet_valid"
	ErrCodeMissingClaims     ErrorCode = "missing_claims"
	ErrCodeInvalidIssuer     ErrorCode = "invalid_issuer"
	ErrCodeInvalidAudience   ErrorCode = "invalid_audience"
	ErrCodeSubjectNotAllowed ErrorCode = "subject_not_allowed"
	ErrCodeSessionRevoked    ErrorCode = "session_revoked"
	ErrCodeKeyUnavailable    ErrorCode = "key_unavailable"
	ErrCodeConfiguration     ErrorCode = "configuration_error"
	ErrCodeInternal          ErrorCode = "internal_error"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeMalformedToken:    "Malformed token",
	ErrCodeInvalidSignature:  "Invalid signature",
	ErrCodeExpired:           "Token expired",
	ErrCodeNotYetValid:       "Token not yet valid",
	ErrCodeMissingClaims:     "Missing required claims",
	ErrCodeInvalidIssuer:     "Invalid issuer",
	ErrCodeInvalidAudience:   "Invalid audience",
	ErrCodeSubjectNotAllowed: "Subject not allowed",
	ErrCodeSessionRevoked:    "Session no longer active",
	ErrCodeKeyUnavailable:    "Signing key unavailable",
	ErrCodeConfiguration:     "Configuration error",
	ErrCodeInternal:          "Internal error",
}

// Error wraps verification errors with a stable code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code, so callers can match
// against the sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrMalformedToken   = &Error{Code: ErrCodeMalformedToken}
	ErrInvalidSignature = &Error{Code: ErrCodeInvalidSignature}
	ErrExpired          = &Error{Code: ErrCodeExpired}
	ErrMissingClaims    = &Error{Code: ErrCodeMissingClaims}
	ErrConfiguration    = &Error{Code: ErrCodeConfiguration}
)

// CodeOf extracts the ErrorCode carried by err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}
