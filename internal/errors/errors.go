// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidInput        = errors.New("invalid price series")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrConfigInvalid       = errors.New("invalid configuration")
)

// CollaboratorError represents a failure of an external collaborator
// (sentiment, price history or order execution source).
type CollaboratorError struct {
	Source string
	Op     string
	Err    error
}

func (e *CollaboratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("collaborator unavailable [%s] %s: %v", e.Source, e.Op, e.Err)
	}
	return fmt.Sprintf("collaborator unavailable [%s] %s", e.Source, e.Op)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError creates a new CollaboratorError.
func NewCollaboratorError(source, op string, err error) *CollaboratorError {
	return &CollaboratorError{Source: source, Op: op, Err: err}
}

// PersistenceError represents a failure to durably commit a ledger mutation.
// A trade must never be treated as recorded while one of these is pending.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure [%s]: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// RiskHaltError is a control signal, not a fault: the circuit breaker has
// tripped and automatic trading must stop until externally reset.
type RiskHaltError struct {
	Reason string
}

func (e *RiskHaltError) Error() string {
	return fmt.Sprintf("risk halt: %s", e.Reason)
}

// NewRiskHaltError creates a new RiskHaltError.
func NewRiskHaltError(reason string) *RiskHaltError {
	return &RiskHaltError{Reason: reason}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
