package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is returned by a Validator when the value breaks one or more
// constraints. It carries every violation found.
type ValidationError struct {
	Errors []Violation `json:"errors"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return e.Errors[0].Message
	}
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("%d errors occurred: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Messages returns the message of every violation in order.
func (e *ValidationError) Messages() []string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.Message
	}
	return msgs
}

// NewValidationError creates a validation error from the given violations.
func NewValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{Errors: violations}
}

// CompileError represents schema source that could not be turned into a validator
type CompileError struct {
	Source string
	Err    error
}

// Error implements the error interface
func (e *CompileError) Error() string {
	return fmt.Sprintf("invalid schema: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *CompileError) Unwrap() error {
	return e.Err
}

// NewCompileError creates a compile error for source
func NewCompileError(source string, err error) *CompileError {
	return &CompileError{Source: source, Err: err}
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCompileError reports whether err is, or wraps, a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
