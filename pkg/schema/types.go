// Package schema holds the types shared by the schema languages the validation
// nodes understand: the compiler and validator contracts and the violation
// report every validator returns.
package schema

// Compiler turns schema source text into an executable Validator.
type Compiler interface {
	Compile(source string) (Validator, error)
}

// Validator checks a value against a compiled schema. Validation is strict and
// collects every violation. A nil error means the value is valid.
type Validator interface {
	Validate(value interface{}) error
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(source string) (Validator, error)

// Compile calls f(source).
func (f CompilerFunc) Compile(source string) (Validator, error) {
	return f(source)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(value interface{}) error

// Validate calls f(value).
func (f ValidatorFunc) Validate(value interface{}) error {
	return f(value)
}

// Violation represents a single failed constraint
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Violation codes
const (
	CodeType        = "TYPE_MISMATCH"
	CodeRequired    = "REQUIRED"
	CodeDefined     = "DEFINED"
	CodeNullable    = "NOT_NULLABLE"
	CodeOneOf       = "ENUM_MISMATCH"
	CodeNotOneOf    = "ENUM_FORBIDDEN"
	CodeMinLength   = "MIN_LENGTH"
	CodeMaxLength   = "MAX_LENGTH"
	CodeLength      = "LENGTH"
	CodePattern     = "PATTERN_MISMATCH"
	CodeFormat      = "FORMAT_MISMATCH"
	CodeCase        = "CASE_MISMATCH"
	CodeTrim        = "NOT_TRIMMED"
	CodeMinimum     = "MINIMUM"
	CodeMaximum     = "MAXIMUM"
	CodeInteger     = "NOT_INTEGER"
	CodeMinItems    = "MIN_ITEMS"
	CodeMaxItems    = "MAX_ITEMS"
	CodeUnknownKeys = "UNKNOWN_KEYS"
	CodeKeyword     = "SCHEMA"
)
