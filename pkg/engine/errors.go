package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an engine error.
type ErrorClass string

const (
	// ErrorClassUsage indicates a programmer error in how the engine or the
	// blackboard was called. Usage errors are reported and the offending unit
	// of work is skipped; they never take the process down.
	ErrorClassUsage ErrorClass = "usage"

	// ErrorClassInternal indicates a broken engine invariant.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Path is the scene path involved, if applicable.
	Path Path `json:"path,omitempty"`

	// Phase is the phase the engine was in when the error occurred.
	Phase Phase `json:"phase,omitempty"`

	// Frame is the ID of the frame the error belongs to, if any.
	Frame string `json:"frame,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if !e.Path.IsEmpty() {
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Phase != "" {
		msg = fmt.Sprintf("%s (phase=%s)", msg, e.Phase)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewUsageError creates a new usage error.
func NewUsageError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassUsage,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInternal,
		Message: message,
		Err:     err,
	}
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithPath adds scene path context to an error.
func (e *EngineError) WithPath(path Path) *EngineError {
	e.Path = path
	return e
}

// WithPhase adds phase context to an error.
func (e *EngineError) WithPhase(phase Phase) *EngineError {
	e.Phase = phase
	return e
}

// WithFrame attributes the error to a frame.
func (e *EngineError) WithFrame(frameID string) *EngineError {
	e.Frame = frameID
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsUsage returns true if the error is classified as a usage error.
func IsUsage(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassUsage
	}
	return false
}

// IsInternal returns true if the error is classified as internal.
func IsInternal(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassInternal
	}
	return false
}

// HasCode returns true if err is an EngineError carrying the given code.
func HasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Common error codes.
const (
	ErrCodeNilArgument       = "NIL_ARGUMENT"
	ErrCodeEmptyPath         = "EMPTY_PATH"
	ErrCodeTaskNotFound      = "TASK_NOT_FOUND"
	ErrCodeTypeMismatch      = "TYPE_MISMATCH"
	ErrCodeEmptyValue        = "EMPTY_VALUE"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInvalidPath       = "INVALID_PATH"
	ErrCodeReentrantExecute  = "REENTRANT_EXECUTE"
)

// Sentinel errors for errors.Is matching by class and code.
var (
	ErrNilArgument  = &EngineError{Class: ErrorClassUsage, Code: ErrCodeNilArgument}
	ErrEmptyPath    = &EngineError{Class: ErrorClassUsage, Code: ErrCodeEmptyPath}
	ErrTaskNotFound = &EngineError{Class: ErrorClassUsage, Code: ErrCodeTaskNotFound}
	ErrTypeMismatch = &EngineError{Class: ErrorClassUsage, Code: ErrCodeTypeMismatch}
	ErrEmptyValue   = &EngineError{Class: ErrorClassUsage, Code: ErrCodeEmptyValue}
)
