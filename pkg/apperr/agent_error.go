// Package apperr defines the structured error type shared across the agent.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// Backend/network failures on classifier or action calls. Recovered by
	// stage fallback or by leaving the message for the next run.
	CodeTransientBackend = "TRANSIENT_BACKEND"

	// Malformed or incomplete classification from a backend stage.
	CodeStructuralValidation = "STRUCTURAL_VALIDATION"

	// A reliability gate (validator or label reconciler) refused to mark
	// the message processed. A routing outcome, not a failure.
	CodeReliabilityGate = "RELIABILITY_GATE"

	// Unresolvable enum or label vocabulary due to schema drift. Logged
	// once per message; the message is skipped, the batch proceeds.
	CodeFatalConfig = "FATAL_CONFIG"

	// Transport errors from the mailbox.
	CodeMailbox = "MAILBOX_ERROR"

	CodeInternal = "INTERNAL_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Constructor functions
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func TransientBackend(err error, message string) *AppError {
	return Wrap(err, CodeTransientBackend, message)
}

func StructuralValidation(message string) *AppError {
	return New(CodeStructuralValidation, message)
}

func ReliabilityGate(message string) *AppError {
	return New(CodeReliabilityGate, message)
}

func FatalConfig(message string) *AppError {
	return New(CodeFatalConfig, message)
}

func Mailbox(err error, message string) *AppError {
	return Wrap(err, CodeMailbox, message)
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
