// Package fault defines the error taxonomy shared by the historical
// intelligence engine: lookups that miss, malformed parameters, unreachable
// persistence backends, and text vectorization failures.
package fault

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a lookup by an unknown id.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err carries ErrNotFound anywhere in its chain.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ValidationError reports a malformed caller-supplied parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for the given field.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// BackendUnavailableError reports that a persistence collaborator could not
// be reached. Write paths surface it; advisory read paths degrade instead.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable: %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// BackendUnavailable wraps err as a BackendUnavailableError for op.
func BackendUnavailable(op string, err error) *BackendUnavailableError {
	return &BackendUnavailableError{Op: op, Err: err}
}

// IsBackendUnavailable reports whether err carries a BackendUnavailableError
// anywhere in its chain.
func IsBackendUnavailable(err error) bool {
	var be *BackendUnavailableError
	return errors.As(err, &be)
}

// VectorizationError reports a text-to-vector failure. It is never fatal:
// callers substitute a zero vector and proceed at reduced recall.
type VectorizationError struct {
	Err error
}

func (e *VectorizationError) Error() string {
	return fmt.Sprintf("vectorization failed: %v", e.Err)
}

func (e *VectorizationError) Unwrap() error { return e.Err }

// Vectorization wraps err as a VectorizationError.
func Vectorization(err error) *VectorizationError {
	return &VectorizationError{Err: err}
}
