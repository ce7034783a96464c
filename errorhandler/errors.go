package errorhandler

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used by the built-in errors.
const (
	CodeInternal   = "INTERNAL_SERVER_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeAuthFailed = "AUTH_FAILED"
	CodeEmptyToken = "EMPTY_TOKEN"

	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// ErrPanic wraps values recovered from a panicking handler.
var ErrPanic = errors.New("errorhandler: handler panicked")

// PublicError is an error whose message and code are safe to expose to
// clients.
type PublicError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any

	// Err is an optional cause. It is never rendered.
	Err error
}

func (e *PublicError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PublicError) Unwrap() error {
	return e.Err
}

// NewPublicError creates a PublicError. A status of zero means 500.
func NewPublicError(status int, code, message string) *PublicError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &PublicError{StatusCode: status, Code: code, Message: message}
}

// WithDetails returns a copy of e carrying details.
func (e *PublicError) WithDetails(details map[string]any) *PublicError {
	cp := *e
	cp.Details = details
	return &cp
}

// AuthFailed returns the 401 error used for rejected credentials.
func AuthFailed() *PublicError {
	return NewPublicError(http.StatusUnauthorized, CodeAuthFailed, "Authentication failed")
}

// EmptyToken returns the 401 error used when a token could not be produced
// or decoded into anything.
func EmptyToken() *PublicError {
	return NewPublicError(http.StatusUnauthorized, CodeEmptyToken, "Empty token")
}

// Issue is one validation failure.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError reports invalid request input. It renders as a 400 with
// the issues under details.error.
type ValidationError struct {
	Issues []Issue
}

// NewValidationError creates a ValidationError.
func NewValidationError(issues ...Issue) *ValidationError {
	return &ValidationError{Issues: issues}
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid params"
	}
	return fmt.Sprintf("invalid params: %s: %s", e.Issues[0].Path, e.Issues[0].Message)
}

// InternalError is a server-side failure with a code and details that are
// logged and reported but never sent to the client.
type InternalError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}
