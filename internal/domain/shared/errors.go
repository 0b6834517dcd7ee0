// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidID     = errors.New("invalid ID")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrNegativeValue = errors.New("value cannot be negative")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Concurrency errors
	ErrConflict        = errors.New("concurrent modification detected")
	ErrLockNotAcquired = errors.New("lock not acquired")

	// Infrastructure errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "task", "focus"
	Op      string // Operation that failed, e.g., "AwardXP", "Toggle"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// StorageError wraps a driver failure as ErrStorageUnavailable.
// Errors that already carry a domain kind are returned unchanged.
func StorageError(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return WrapError(domain, op, ErrStorageUnavailable, "storage call failed", err)
}

// Progress domain errors
var (
	ErrProgressNotFound = NewDomainError("progress", "Find", ErrNotFound, "progress not found")
	ErrInvalidUserID    = NewDomainError("progress", "Validate", ErrInvalidInput, "invalid user ID")
	ErrNonPositiveXP    = NewDomainError("progress", "AwardXP", ErrInvalidInput, "xp amount must be positive")
	ErrUnknownSource    = NewDomainError("progress", "AwardXP", ErrInvalidInput, "unknown xp source")
)

// Task domain errors
var (
	ErrTaskNotFound     = NewDomainError("task", "Find", ErrNotFound, "task not found")
	ErrTaskTitleEmpty   = NewDomainError("task", "Validate", ErrEmptyValue, "task title is required")
	ErrInvalidTaskID    = NewDomainError("task", "Validate", ErrInvalidID, "invalid task ID")
	ErrTaskOwnerInvalid = NewDomainError("task", "Validate", ErrInvalidInput, "task does not belong to user")
)

// Focus domain errors
var (
	ErrSessionNotFound     = NewDomainError("focus", "Find", ErrNotFound, "focus session not found")
	ErrInvalidSessionID    = NewDomainError("focus", "Validate", ErrInvalidID, "invalid focus session ID")
	ErrNonPositiveDuration = NewDomainError("focus", "Validate", ErrInvalidInput, "duration must be a positive number of minutes")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if the error is a validation error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue)
}

// IsStorageUnavailable checks if the error came from the storage collaborator.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrTimeout)
}

// IsConflict checks if the error is caused by concurrent access.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrLockNotAcquired)
}
