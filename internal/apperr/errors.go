// Package apperr defines the error types a sync run distinguishes. Callers
// classify failures with errors.As; each type carries a stable Code for logs
// and metrics labels.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Coded is implemented by every error in this package.
type Coded interface {
	error
	Code() string
}

// ValidationError is a missing or malformed critical field on a source record.
// The record is skipped and counted as invalid.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Code() string { return "VALIDATION_ERROR" }

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// LookupError is a failed existence check. It is never treated as not-found,
// since that would lead to a duplicate create.
type LookupError struct {
	Key string // already masked
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s: %v", e.Key, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Code() string { return "LOOKUP_ERROR" }

// ConflictError is a create rejected because a unique property (typically
// email) already belongs to another record. ExistingID is that record's id
// when the CRM reported it.
type ConflictError struct {
	Message    string
	ExistingID string
}

func (e *ConflictError) Error() string {
	if e.ExistingID != "" {
		return fmt.Sprintf("conflict with existing record %s: %s", e.ExistingID, e.Message)
	}
	return "conflict: " + e.Message
}

func (e *ConflictError) Code() string { return "CONFLICT" }

// TransportError is any other failed CRM call.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Code() string { return "TRANSPORT_ERROR" }

// ConfigurationError lists required settings that are missing or invalid.
// It aborts the run before any record is read.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigurationError) Code() string { return "CONFIGURATION_ERROR" }

// MetadataUnavailable means the property metadata endpoint could not be read.
type MetadataUnavailable struct {
	ObjectType string
	Err        error
}

func (e *MetadataUnavailable) Error() string {
	return fmt.Sprintf("property metadata for %s unavailable: %v", e.ObjectType, e.Err)
}

func (e *MetadataUnavailable) Unwrap() error { return e.Err }

func (e *MetadataUnavailable) Code() string { return "METADATA_UNAVAILABLE" }

// CodeOf returns the Code of the first Coded error in err's chain, or
// "UNKNOWN".
func CodeOf(err error) string {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return "UNKNOWN"
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
