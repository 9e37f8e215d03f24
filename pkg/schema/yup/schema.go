// Package yup implements a restricted interpreter for fluent yup schema
// expressions such as
//
//	string().required().min(3)
//	object({ name: string().required(), tags: array(string()).min(1) })
//
// Expressions are parsed, never evaluated: the syntax tree is walked against a
// fixed set of constructors and methods, and anything else is rejected.
// Compiled schemas validate strictly (no casting or transforms) and collect
// every violation.
package yup

import (
	"github.com/wehubfusion/Themis/pkg/schema"
)

// Kind is the base type of a schema.
type Kind string

// Schema kinds
const (
	KindMixed   Kind = "mixed"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindDate    Kind = "date"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindTuple   Kind = "tuple"
)

// Schema is a compiled yup schema. It is immutable once compiled and safe for
// concurrent use.
type Schema struct {
	kind  Kind
	label string

	optional      bool
	nullable      bool
	undefinedMsg  string
	undefinedCode string
	nullMsg       string
	nullCode      string
	typeErrorMsg  string

	oneOf       []interface{}
	oneOfMsg    string
	notOneOf    []interface{}
	notOneOfMsg string

	defaultValue interface{}
	tests        []test

	// array
	inner *Schema
	// object
	fields []field
	// tuple
	elems []*Schema
}

var _ schema.Validator = (*Schema)(nil)

type field struct {
	name   string
	schema *Schema
}

// test is a single constraint run after the type check passed.
// Tests never see absent (undefined or null) values.
type test struct {
	name    string
	code    string
	message string
	params  map[string]interface{}
	check   func(value interface{}) bool
	// dynamicParams adds parameters derived from the failing value
	dynamicParams func(value interface{}) map[string]interface{}
}

func newSchema(kind Kind) *Schema {
	return &Schema{
		kind:         kind,
		optional:     true,
		defaultValue: Undefined,
	}
}

// Kind returns the base type of the schema.
func (s *Schema) Kind() Kind {
	return s.kind
}

// Label returns the label set with label(), if any.
func (s *Schema) Label() string {
	return s.label
}

// Default returns the value set with default(), or Undefined. Defaults are
// not applied during strict validation.
func (s *Schema) Default() interface{} {
	return s.defaultValue
}

// Fields returns the field names of an object schema in declaration order.
func (s *Schema) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

func (s *Schema) addTest(t test) {
	// a named test replaces an earlier one of the same name
	for i := range s.tests {
		if s.tests[i].name == t.name {
			s.tests[i] = t
			return
		}
	}
	s.tests = append(s.tests, t)
}

func (s *Schema) removeTest(name string) {
	kept := s.tests[:0]
	for _, t := range s.tests {
		if t.name != name {
			kept = append(kept, t)
		}
	}
	s.tests = kept
}

func (s *Schema) setRequired(msg string) {
	if msg == "" {
		msg = localeRequired
	}
	s.optional = false
	s.nullable = false
	s.undefinedMsg = msg
	s.undefinedCode = schema.CodeRequired
	s.nullMsg = msg
	s.nullCode = schema.CodeRequired

	switch s.kind {
	case KindString:
		s.addTest(test{
			name:    "required",
			code:    schema.CodeRequired,
			message: msg,
			check: func(v interface{}) bool {
				return v.(string) != ""
			},
		})
	}
}

func (s *Schema) setDefined(msg string) {
	if msg == "" {
		msg = localeDefined
	}
	s.optional = false
	s.undefinedMsg = msg
	s.undefinedCode = schema.CodeDefined
}

func (s *Schema) setOptional() {
	s.optional = true
	s.undefinedMsg = ""
	s.undefinedCode = ""
}

func (s *Schema) setNullable(nullable bool, msg string) {
	s.nullable = nullable
	s.nullMsg = msg
	s.nullCode = ""
}

// setNotRequired allows both undefined and null and drops the empty string check.
func (s *Schema) setNotRequired() {
	s.setOptional()
	s.setNullable(true, "")
	s.removeTest("required")
}

func (s *Schema) setField(name string, child *Schema) {
	for i := range s.fields {
		if s.fields[i].name == name {
			s.fields[i].schema = child
			return
		}
	}
	s.fields = append(s.fields, field{name: name, schema: child})
}
