package yup

import (
	"fmt"
	"strings"
)

// ErrorType categorizes expression compile errors
type ErrorType string

const (
	// ErrorTypeSyntax is text that does not parse as an expression
	ErrorTypeSyntax ErrorType = "syntax_error"
	// ErrorTypeSecurity is a construct outside the allowed schema builders
	ErrorTypeSecurity ErrorType = "security_error"
	// ErrorTypeArgument is an allowed call with unusable arguments
	ErrorTypeArgument ErrorType = "argument_error"
)

// ExpressionError describes why an expression could not be compiled.
type ExpressionError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Offset  int       `json:"offset,omitempty"`
	Line    int       `json:"line,omitempty"`
	Column  int       `json:"column,omitempty"`
}

func newExpressionError(typ ErrorType, message string, offset int) *ExpressionError {
	return &ExpressionError{Type: typ, Message: message, Offset: offset}
}

// Error implements the error interface
func (e *ExpressionError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Type, e.Message))

	switch {
	case e.Line > 0:
		b.WriteString(fmt.Sprintf(" at line %d", e.Line))
		if e.Column > 0 {
			b.WriteString(fmt.Sprintf(", column %d", e.Column))
		}
	case e.Offset > 0:
		b.WriteString(fmt.Sprintf(" at offset %d", e.Offset))
	}

	return b.String()
}
