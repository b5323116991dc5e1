// Package errors provides shared error types for the materials database clients.
package errors

import (
	"errors"
	"fmt"
)

// ValidationError indicates invalid input parameters.
type ValidationError struct {
	Field   string // field name that failed validation
	Value   string // the invalid value (may be empty)
	Message string // human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("validation failed for %s=%q: %s", e.Field, e.Value, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// APIError is returned when an upstream database answers with an error,
// either through the HTTP status or through an error code in the body.
type APIError struct {
	Database   string // "bohrium", "mofdb", "openlam", "optimade"
	StatusCode int    // HTTP status, 0 if the transport succeeded but the body reported failure
	Code       int    // application error code from the body, if any
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Code != 0:
		return fmt.Sprintf("%s API error %d (code %d): %s", e.Database, e.StatusCode, e.Code, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s API error %d: %s", e.Database, e.StatusCode, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("%s API error (code %d): %s", e.Database, e.Code, e.Message)
	default:
		return fmt.Sprintf("%s API error: %s", e.Database, e.Message)
	}
}

// NewAPIError creates an APIError from an HTTP status.
func NewAPIError(database string, statusCode int, message string) *APIError {
	return &APIError{
		Database:   database,
		StatusCode: statusCode,
		Message:    message,
	}
}

// IsValidation returns true if err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsAPIError returns true if err is, or wraps, an APIError.
func IsAPIError(err error) bool {
	var a *APIError
	return errors.As(err, &a)
}
