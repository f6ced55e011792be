package config

import (
	"errors"
	"fmt"
)

// ValidationError reports a configuration problem. It is fatal: resolution
// errors are never retried, and executions triggered with an invalid
// configuration fail before any resource is created.
type ValidationError struct {
	// Target is the fragment name the error was found under, if any.
	Target string

	// KeyPath is the dotted path of the offending key (e.g.
	// "taxi.Datasets[1].DatasetType").
	KeyPath string

	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch {
	case e.Target != "" && e.KeyPath != "":
		return fmt.Sprintf("invalid configuration for %s at %s: %s", e.Target, e.KeyPath, e.Message)
	case e.KeyPath != "":
		return fmt.Sprintf("invalid configuration at %s: %s", e.KeyPath, e.Message)
	default:
		return fmt.Sprintf("invalid configuration: %s", e.Message)
	}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
