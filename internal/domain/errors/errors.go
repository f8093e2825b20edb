// Package errors provides standardized error types for the domain layer.
// These errors enable consistent categorization across services and proper
// HTTP mapping at the API boundary.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates user-correctable invalid input, rejected
	// before any external call
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates a failed authenticity check; dropped at the
	// boundary and never forwarded to the engine
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller lacks the required role
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateEvent indicates an idempotency hit; treated as a success
	// no-op, not a failure
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrConflict indicates an optimistic version check failed; retried a
	// bounded number of times before being surfaced
	ErrConflict = errors.New("concurrent modification")

	// ErrStateViolation indicates an operation not permitted by the position
	// state machine
	ErrStateViolation = errors.New("state violation")

	// ErrServiceUnavailable indicates an external channel call failed;
	// retryable, no state change
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// WithDetails adds details to the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// IsRetryable returns true if the error is retryable
func (e *DomainError) IsRetryable() bool {
	return e.Retryable
}

// ValidationError creates a validation error for a field
func ValidationError(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", resource),
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// AuthenticityError creates an error for a failed signature check
func AuthenticityError(message string) *DomainError {
	return &DomainError{
		Err:     ErrUnauthorized,
		Code:    "INVALID_SIGNATURE",
		Message: message,
	}
}

// DuplicateEventError creates an idempotency-hit error carrying the external reference
func DuplicateEventError(externalRef string) *DomainError {
	return &DomainError{
		Err:     ErrDuplicateEvent,
		Code:    "DUPLICATE_EVENT",
		Message: fmt.Sprintf("event %s already processed", externalRef),
		Details: map[string]interface{}{
			"external_reference": externalRef,
		},
	}
}

// ConflictError creates a concurrent-modification error
func ConflictError(resource string) *DomainError {
	return &DomainError{
		Err:       ErrConflict,
		Code:      "CONCURRENT_MODIFICATION",
		Message:   fmt.Sprintf("%s was modified concurrently", resource),
		Retryable: true,
	}
}

// StateViolationError creates an error for an operation the state machine forbids
func StateViolationError(message string) *DomainError {
	return &DomainError{
		Err:     ErrStateViolation,
		Code:    "STATE_VIOLATION",
		Message: message,
	}
}

// ExternalUnavailableError creates a retryable error for a failed external call
func ExternalUnavailableError(service string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrServiceUnavailable,
		Code:      "SERVICE_UNAVAILABLE",
		Message:   fmt.Sprintf("%s is temporarily unavailable", service),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// InternalError creates an internal error
func InternalError(message string, err error) *DomainError {
	de := &DomainError{
		Err:     ErrInternal,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// Error helpers for common patterns

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if an error is a validation error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsDuplicateEvent checks if an error is an idempotency hit
func IsDuplicateEvent(err error) bool {
	return errors.Is(err, ErrDuplicateEvent)
}

// IsConflict checks if an error is a concurrent modification
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsStateViolation checks if an error is a state machine violation
func IsStateViolation(err error) bool {
	return errors.Is(err, ErrStateViolation)
}

// IsServiceUnavailable checks if an error is a retryable external failure
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "UNKNOWN_ERROR"
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
