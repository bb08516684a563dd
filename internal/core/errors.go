package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrTimeout           = errors.New("operation timed out")
	ErrPartialSettlement = errors.New("settlement partially applied")
	ErrNotPending        = errors.New("record is not pending")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects field errors. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Err returns nil when no field errors were collected.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// PartialSettlementError names the two records left inconsistent when a
// settlement could not be completed or compensated.
type PartialSettlementError struct {
	SettlementID string
	LentID       string
	Cause        error
}

func (e *PartialSettlementError) Error() string {
	return fmt.Sprintf("settlement %s written but lent record %s not updated: %v", e.SettlementID, e.LentID, e.Cause)
}

func (e *PartialSettlementError) Is(target error) bool { return target == ErrPartialSettlement }

func (e *PartialSettlementError) Unwrap() error { return e.Cause }
