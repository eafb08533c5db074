// Package errors provides domain-specific error types and sentinel errors
// shared by the upstream client, the scan pipeline and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates the caller provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the shared admin secret did not match.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrScanInProgress is returned when a scan is started while another one is running.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrNoEntities indicates directory discovery finished without finding a single group.
	ErrNoEntities = errors.New("no groups discovered")

	// ErrReferenceData indicates the faculty/form/course filter lists could not be loaded.
	ErrReferenceData = errors.New("reference data unavailable")

	// ErrMalformedPayload indicates the upstream body could not be decoded.
	ErrMalformedPayload = errors.New("malformed upstream payload")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput reports whether err is or wraps ErrInvalidInput.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsSystemic reports whether err terminates a scan instead of being counted per entity.
func IsSystemic(err error) bool {
	return errors.Is(err, ErrNoEntities) || errors.Is(err, ErrReferenceData)
}

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// UpstreamError is the uniform failure value of a single upstream call:
// transport failure, timeout, non-2xx status or an undecodable body.
type UpstreamError struct {
	Action     string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream error (action=%s, status=%d): %v", e.Action, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream error (action=%s): %v", e.Action, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates a new upstream error.
func NewUpstreamError(action string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{
		Action:     action,
		StatusCode: statusCode,
		Err:        err,
	}
}
