package yup

import (
	"strconv"

	"github.com/wehubfusion/Themis/pkg/schema"
)

// Validate implements schema.Validator. It returns a *schema.ValidationError
// listing every violation, or nil.
func (s *Schema) Validate(value interface{}) error {
	violations := s.validate(value, "")
	if len(violations) == 0 {
		return nil
	}
	return schema.NewValidationError(violations...)
}

// IsValid reports whether value passes the schema.
func (s *Schema) IsValid(value interface{}) bool {
	return len(s.validate(value, "")) == 0
}

// validate checks presence and type first. When those fail nothing else runs.
// Otherwise nested values are checked, and their violations precede the
// schema's own test failures.
func (s *Schema) validate(value interface{}, path string) []schema.Violation {
	if initial := s.initialChecks(value, path); len(initial) > 0 {
		return initial
	}
	if isAbsent(value) {
		return nil
	}

	var own []schema.Violation
	for _, t := range s.tests {
		if t.check(value) {
			continue
		}
		params := t.params
		if t.dynamicParams != nil {
			params = t.dynamicParams(value)
			for k, v := range t.params {
				params[k] = v
			}
		}
		own = append(own, s.violation(t.code, t.message, path, value, params))
	}

	return append(s.validateChildren(value, path), own...)
}

func (s *Schema) initialChecks(value interface{}, path string) []schema.Violation {
	switch {
	case isUndefined(value):
		if s.optional {
			return nil
		}
		msg, code := s.undefinedMsg, s.undefinedCode
		if msg == "" {
			msg, code = localeDefined, schema.CodeDefined
		}
		return []schema.Violation{s.violation(code, msg, path, value, nil)}
	case value == nil:
		if s.nullable {
			return nil
		}
		msg, code := s.nullMsg, s.nullCode
		if msg == "" {
			msg = localeNotNull
		}
		if code == "" {
			code = schema.CodeNullable
		}
		return []schema.Violation{s.violation(code, msg, path, value, nil)}
	}

	var out []schema.Violation
	if !s.typeCheck(value) {
		if s.typeErrorMsg != "" {
			out = append(out, s.violation(schema.CodeType, s.typeErrorMsg, path, value, nil))
		} else {
			out = append(out, schema.Violation{
				Path:    path,
				Message: typeErrorMessage(s, value, s.displayPath(path)),
				Code:    schema.CodeType,
			})
		}
	}
	if len(s.oneOf) > 0 && !contains(s.oneOf, value) {
		msg := s.oneOfMsg
		if msg == "" {
			msg = localeOneOf
		}
		out = append(out, s.violation(schema.CodeOneOf, msg, path, value, map[string]interface{}{
			"values": joinValues(s.oneOf),
		}))
	}
	if len(s.notOneOf) > 0 && contains(s.notOneOf, value) {
		msg := s.notOneOfMsg
		if msg == "" {
			msg = localeNotOneOf
		}
		out = append(out, s.violation(schema.CodeNotOneOf, msg, path, value, map[string]interface{}{
			"values": joinValues(s.notOneOf),
		}))
	}
	return out
}

func (s *Schema) typeCheck(value interface{}) bool {
	switch s.kind {
	case KindString:
		_, ok := asString(value)
		return ok
	case KindNumber:
		_, ok := toFloat(value)
		return ok
	case KindBoolean:
		_, ok := asBool(value)
		return ok
	case KindDate:
		_, ok := asDate(value)
		return ok
	case KindArray:
		_, ok := asSlice(value)
		return ok
	case KindObject:
		_, ok := asMap(value)
		return ok
	case KindTuple:
		list, ok := asSlice(value)
		return ok && len(list) == len(s.elems)
	}
	return true
}

func (s *Schema) validateChildren(value interface{}, path string) []schema.Violation {
	var out []schema.Violation
	switch s.kind {
	case KindArray:
		if s.inner == nil {
			return nil
		}
		list, _ := asSlice(value)
		for i, elem := range list {
			out = append(out, s.inner.validate(elem, indexPath(path, i))...)
		}
	case KindTuple:
		list, _ := asSlice(value)
		for i, elem := range s.elems {
			if i < len(list) {
				out = append(out, elem.validate(list[i], indexPath(path, i))...)
			}
		}
	case KindObject:
		m, _ := asMap(value)
		for _, f := range s.fields {
			child, ok := m[f.name]
			if !ok {
				child = Undefined
			}
			out = append(out, f.schema.validate(child, fieldPath(path, f.name))...)
		}
	}
	return out
}

// violation renders msg for a failed check at path.
func (s *Schema) violation(code, msg, path string, value interface{}, params map[string]interface{}) schema.Violation {
	p := map[string]interface{}{
		"path":          s.displayPath(path),
		"value":         value,
		"originalValue": value,
		"type":          string(s.kind),
	}
	if s.label != "" {
		p["label"] = s.label
	}
	for k, v := range params {
		p[k] = v
	}
	return schema.Violation{Path: path, Message: formatMessage(msg, p), Code: code}
}

// displayPath is the name a message refers to the value by.
func (s *Schema) displayPath(path string) string {
	switch {
	case s.label != "":
		return s.label
	case path != "":
		return path
	}
	return "this"
}

func fieldPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func indexPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}
