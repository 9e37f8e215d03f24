package node

import (
	"encoding/json"
	"fmt"
)

// ParseRules reads the rule list from node parameters shaped as
//
//	{"validations": {"validation": [{"fieldValue": ..., "validationSchema": ...}]}}
//
// Missing collections yield an empty list.
func ParseRules(params map[string]interface{}) ([]Rule, error) {
	raw, ok := params[ParamValidations]
	if !ok || raw == nil {
		return nil, nil
	}

	collection, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object, got %T", ErrInvalidParameters, ParamValidations, raw)
	}

	entries, ok := collection[ParamValidation]
	if !ok || entries == nil {
		return nil, nil
	}

	list, ok := entries.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s must be a list, got %T", ErrInvalidParameters, ParamValidations, ParamValidation, entries)
	}

	rules := make([]Rule, 0, len(list))
	for i, entry := range list {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: rule %d must be an object, got %T", ErrInvalidParameters, i, entry)
		}

		schemaText, err := schemaSource(fields[ParamValidationSchema])
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidParameters, i, err)
		}

		rules = append(rules, Rule{
			FieldValue:       fields[ParamFieldValue],
			ValidationSchema: schemaText,
		})
	}
	return rules, nil
}

// schemaSource accepts schema text as a string or as an already decoded JSON document.
func schemaSource(v interface{}) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(s)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", ParamValidationSchema, err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%s must be text, got %T", ParamValidationSchema, v)
	}
}
