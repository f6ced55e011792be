package forecast

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a service call outcome for retry logic. Every error
// crossing the client boundary carries exactly one class.
type ErrorClass string

const (
	// ClassTransient indicates a temporary failure (network error,
	// 5xx-class response) that may succeed on retry.
	ClassTransient ErrorClass = "transient"

	// ClassThrottled indicates rate limiting or a per-account concurrency
	// limit. Retried with exponential backoff.
	ClassThrottled ErrorClass = "throttled"

	// ClassConflict indicates the resource already exists or is busy
	// updating. Creation conflicts are resolved by idempotent re-attach
	// when the existing resource matches intent.
	ClassConflict ErrorClass = "conflict"

	// ClassPermanent indicates a non-recoverable error: validation
	// failures, missing resources, permission problems. Never retried.
	ClassPermanent ErrorClass = "permanent"
)

// ClientError is a classified error from the forecasting service.
type ClientError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource name that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the API operation being performed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Operation != "" {
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithResource adds resource context to the error.
func (e *ClientError) WithResource(name string) *ClientError {
	e.Resource = name
	return e
}

// WithOperation adds operation context to the error.
func (e *ClientError) WithOperation(op string) *ClientError {
	e.Operation = op
	return e
}

// NewTransientError creates a transient-class error.
func NewTransientError(message string, err error) *ClientError {
	return &ClientError{Class: ClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a throttled-class error.
func NewThrottledError(message string, err error) *ClientError {
	return &ClientError{Class: ClassThrottled, Message: message, Err: err}
}

// NewConflictError creates a conflict-class error.
func NewConflictError(message string, err error) *ClientError {
	return &ClientError{Class: ClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a permanent-class error.
func NewPermanentError(message string, err error) *ClientError {
	return &ClientError{Class: ClassPermanent, Message: message, Err: err}
}

// IsTransient reports whether err is classified transient.
func IsTransient(err error) bool {
	var e *ClientError
	return errors.As(err, &e) && e.Class == ClassTransient
}

// IsThrottled reports whether err is classified throttled.
func IsThrottled(err error) bool {
	var e *ClientError
	return errors.As(err, &e) && e.Class == ClassThrottled
}

// IsConflict reports whether err is classified as a conflict.
func IsConflict(err error) bool {
	var e *ClientError
	return errors.As(err, &e) && e.Class == ClassConflict
}

// IsPermanent reports whether err is classified permanent.
func IsPermanent(err error) bool {
	var e *ClientError
	return errors.As(err, &e) && e.Class == ClassPermanent
}

// IsRetryable reports whether the error may succeed on retry. Conflicts are
// not blindly retried; they go through the re-attach path instead.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err)
}

// IsNotFound reports whether err is a permanent not-found error.
func IsNotFound(err error) bool {
	var e *ClientError
	return errors.As(err, &e) && e.Code == ErrCodeNotFound
}

// IsAlreadyExists reports whether err signals a duplicate-creation
// conflict.
func IsAlreadyExists(err error) bool {
	var e *ClientError
	return errors.As(err, &e) && e.Code == ErrCodeAlreadyExists
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeResourceInUse    = "RESOURCE_IN_USE"
	ErrCodeResourceMismatch = "RESOURCE_MISMATCH"
	ErrCodeLimitExceeded    = "LIMIT_EXCEEDED"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeRetriesExhausted = "RETRIES_EXHAUSTED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
