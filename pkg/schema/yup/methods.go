package yup

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wehubfusion/Themis/pkg/schema"
)

// method applies one chained call to a schema under construction.
type method func(s *Schema, args []interface{}) error

// constructors maps the allowed root calls to the schema kind they build.
var constructors = map[string]Kind{
	"mixed":   KindMixed,
	"string":  KindString,
	"number":  KindNumber,
	"boolean": KindBoolean,
	"bool":    KindBoolean,
	"date":    KindDate,
	"array":   KindArray,
	"object":  KindObject,
	"tuple":   KindTuple,
}

var commonMethods = map[string]method{
	"required": func(s *Schema, args []interface{}) error {
		msg, err := messageArg(args, 0, 1)
		if err != nil {
			return err
		}
		s.setRequired(msg)
		return nil
	},
	"defined": func(s *Schema, args []interface{}) error {
		msg, err := messageArg(args, 0, 1)
		if err != nil {
			return err
		}
		s.setDefined(msg)
		return nil
	},
	"optional": func(s *Schema, args []interface{}) error {
		if err := arity(args, 0, 0); err != nil {
			return err
		}
		s.setOptional()
		return nil
	},
	"notRequired": func(s *Schema, args []interface{}) error {
		if err := arity(args, 0, 0); err != nil {
			return err
		}
		s.setNotRequired()
		return nil
	},
	"nullable": func(s *Schema, args []interface{}) error {
		if err := arity(args, 0, 0); err != nil {
			return err
		}
		s.setNullable(true, "")
		return nil
	},
	"nonNullable": func(s *Schema, args []interface{}) error {
		msg, err := messageArg(args, 0, 1)
		if err != nil {
			return err
		}
		s.setNullable(false, msg)
		return nil
	},
	"oneOf": func(s *Schema, args []interface{}) error {
		values, msg, err := valueListArgs(args)
		if err != nil {
			return err
		}
		for _, v := range values {
			if !contains(s.oneOf, v) {
				s.oneOf = append(s.oneOf, v)
			}
			s.notOneOf = without(s.notOneOf, v)
		}
		s.oneOfMsg = msg
		return nil
	},
	"notOneOf": func(s *Schema, args []interface{}) error {
		values, msg, err := valueListArgs(args)
		if err != nil {
			return err
		}
		for _, v := range values {
			if !contains(s.notOneOf, v) {
				s.notOneOf = append(s.notOneOf, v)
			}
			s.oneOf = without(s.oneOf, v)
		}
		s.notOneOfMsg = msg
		return nil
	},
	"label": func(s *Schema, args []interface{}) error {
		if err := arity(args, 1, 1); err != nil {
			return err
		}
		label, ok := args[0].(string)
		if !ok {
			return fmt.Errorf("expects a string label, got %s", describeArg(args[0]))
		}
		s.label = label
		return nil
	},
	"typeError": func(s *Schema, args []interface{}) error {
		if err := arity(args, 1, 1); err != nil {
			return err
		}
		msg, ok := args[0].(string)
		if !ok {
			return fmt.Errorf("expects a string message, got %s", describeArg(args[0]))
		}
		s.typeErrorMsg = msg
		return nil
	},
	"default": func(s *Schema, args []interface{}) error {
		if err := arity(args, 1, 1); err != nil {
			return err
		}
		v, err := plainValue(args[0])
		if err != nil {
			return err
		}
		s.defaultValue = v
		return nil
	},
	// validation is always strict; strict() and meta() are accepted for
	// compatibility and change nothing
	"strict": func(s *Schema, args []interface{}) error {
		if err := arity(args, 0, 1); err != nil {
			return err
		}
		if len(args) == 1 {
			if _, ok := args[0].(bool); !ok {
				return fmt.Errorf("expects a boolean, got %s", describeArg(args[0]))
			}
		}
		return nil
	},
	"meta": func(s *Schema, args []interface{}) error {
		if err := arity(args, 1, 1); err != nil {
			return err
		}
		if _, ok := args[0].(*orderedMap); !ok {
			return fmt.Errorf("expects an object, got %s", describeArg(args[0]))
		}
		return nil
	},
}

var kindMethods = map[Kind]map[string]method{
	KindString: {
		"length": lengthTest("length", schema.CodeLength, localeStringLength, func(v interface{}) int {
			return utf8.RuneCountInString(v.(string))
		}, func(n, limit int) bool { return n == limit }),
		"min": lengthTest("min", schema.CodeMinLength, localeStringMin, func(v interface{}) int {
			return utf8.RuneCountInString(v.(string))
		}, func(n, limit int) bool { return n >= limit }),
		"max": lengthTest("max", schema.CodeMaxLength, localeStringMax, func(v interface{}) int {
			return utf8.RuneCountInString(v.(string))
		}, func(n, limit int) bool { return n <= limit }),
		"matches": stringMatches,
		"email":   formatTest("email", localeStringEmail, true),
		"url":     formatTest("url", localeStringURL, true),
		"uuid":    formatTest("uuid", localeStringUUID, false),
		"trim": stringTest("trim", schema.CodeTrim, localeStringTrim, func(v string) bool {
			return v == strings.TrimSpace(v)
		}),
		"lowercase": stringTest("string_case", schema.CodeCase, localeStringLowercase, func(v string) bool {
			return v == cases.Lower(language.Und).String(v)
		}),
		"uppercase": stringTest("string_case", schema.CodeCase, localeStringUppercase, func(v string) bool {
			return v == cases.Upper(language.Und).String(v)
		}),
		"ensure": noop,
	},
	KindNumber: {
		"min":      numberTest("min", "min", schema.CodeMinimum, localeNumberMin, func(v, limit float64) bool { return v >= limit }),
		"max":      numberTest("max", "max", schema.CodeMaximum, localeNumberMax, func(v, limit float64) bool { return v <= limit }),
		"lessThan": numberTest("max", "less", schema.CodeMaximum, localeNumberLessThan, func(v, limit float64) bool { return v < limit }),
		"moreThan": numberTest("min", "more", schema.CodeMinimum, localeNumberMoreThan, func(v, limit float64) bool { return v > limit }),
		"positive": signTest("min", "more", localeNumberPositive, schema.CodeMinimum, func(v float64) bool { return v > 0 }),
		"negative": signTest("max", "less", localeNumberNegative, schema.CodeMaximum, func(v float64) bool { return v < 0 }),
		"integer": func(s *Schema, args []interface{}) error {
			msg, err := messageArg(args, 0, 1)
			if err != nil {
				return err
			}
			s.addTest(test{
				name:    "integer",
				code:    schema.CodeInteger,
				message: orDefault(msg, localeNumberInteger),
				check: func(v interface{}) bool {
					f, _ := toFloat(v)
					return !math.IsInf(f, 0) && math.Trunc(f) == f
				},
			})
			return nil
		},
	},
	KindBoolean: {
		"isTrue":  booleanValue(true),
		"isFalse": booleanValue(false),
	},
	KindDate: {
		"min": dateTest("min", schema.CodeMinimum, localeDateMin, func(v, limit time.Time) bool { return !v.Before(limit) }),
		"max": dateTest("max", schema.CodeMaximum, localeDateMax, func(v, limit time.Time) bool { return !v.After(limit) }),
	},
	KindArray: {
		"of": func(s *Schema, args []interface{}) error {
			if err := arity(args, 1, 1); err != nil {
				return err
			}
			inner, ok := args[0].(*Schema)
			if !ok {
				return fmt.Errorf("expects a schema, got %s", describeArg(args[0]))
			}
			s.inner = inner
			return nil
		},
		"length":  lengthTest("length", schema.CodeLength, localeArrayLength, sliceLen, func(n, limit int) bool { return n == limit }),
		"min":     lengthTest("min", schema.CodeMinItems, localeArrayMin, sliceLen, func(n, limit int) bool { return n >= limit }),
		"max":     lengthTest("max", schema.CodeMaxItems, localeArrayMax, sliceLen, func(n, limit int) bool { return n <= limit }),
		"compact": noop,
		"ensure":  noop,
	},
	KindObject: {
		"shape": func(s *Schema, args []interface{}) error {
			if err := arity(args, 1, 1); err != nil {
				return err
			}
			return applyShape(s, args[0])
		},
		"noUnknown": objectNoUnknown,
	},
}

func lookupMethod(kind Kind, name string) (method, bool) {
	if m, ok := kindMethods[kind][name]; ok {
		return m, true
	}
	m, ok := commonMethods[name]
	return m, ok
}

// applyConstructor initialises s from the constructor arguments.
func applyConstructor(s *Schema, args []interface{}) error {
	switch s.kind {
	case KindArray:
		if err := arity(args, 0, 1); err != nil {
			return err
		}
		if len(args) == 1 {
			return kindMethods[KindArray]["of"](s, args)
		}
	case KindObject:
		if err := arity(args, 0, 1); err != nil {
			return err
		}
		if len(args) == 1 {
			return applyShape(s, args[0])
		}
	case KindTuple:
		if err := arity(args, 1, 1); err != nil {
			return err
		}
		list, ok := args[0].([]interface{})
		if !ok || len(list) == 0 {
			return fmt.Errorf("expects a non-empty array of schemas, got %s", describeArg(args[0]))
		}
		for i, elem := range list {
			es, ok := elem.(*Schema)
			if !ok {
				return fmt.Errorf("element %d must be a schema, got %s", i, describeArg(elem))
			}
			s.elems = append(s.elems, es)
		}
	default:
		return arity(args, 0, 0)
	}
	return nil
}

func applyShape(s *Schema, arg interface{}) error {
	shape, ok := arg.(*orderedMap)
	if !ok {
		return fmt.Errorf("expects an object of schemas, got %s", describeArg(arg))
	}
	for _, name := range shape.keys {
		child, ok := shape.values[name].(*Schema)
		if !ok {
			return fmt.Errorf("field %q must be a schema, got %s", name, describeArg(shape.values[name]))
		}
		s.setField(name, child)
	}
	return nil
}

func objectNoUnknown(s *Schema, args []interface{}) error {
	if err := arity(args, 0, 2); err != nil {
		return err
	}
	enabled := true
	msg := ""
	for i, a := range args {
		switch v := a.(type) {
		case bool:
			if i != 0 {
				return fmt.Errorf("argument %d must be a message string", i)
			}
			enabled = v
		case string:
			msg = v
		default:
			return fmt.Errorf("expects a boolean or message, got %s", describeArg(a))
		}
	}
	if !enabled {
		s.removeTest("noUnknown")
		return nil
	}

	s.addTest(test{
		name:    "noUnknown",
		code:    schema.CodeUnknownKeys,
		message: orDefault(msg, localeObjectNoUnknown),
		check: func(v interface{}) bool {
			return len(unknownKeys(s, v)) == 0
		},
		dynamicParams: func(v interface{}) map[string]interface{} {
			return map[string]interface{}{"unknown": strings.Join(unknownKeys(s, v), ", ")}
		},
	})
	return nil
}

func unknownKeys(s *Schema, v interface{}) []string {
	m, _ := asMap(v)
	known := make(map[string]bool, len(s.fields))
	for _, f := range s.fields {
		known[f.name] = true
	}
	var unknown []string
	for k := range m {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func lengthTest(name, code, locale string, length func(interface{}) int, ok func(n, limit int) bool) method {
	return func(s *Schema, args []interface{}) error {
		if err := arity(args, 1, 2); err != nil {
			return err
		}
		limit, err := countArg(args[0])
		if err != nil {
			return err
		}
		msg, err := messageArg(args, 1, 2)
		if err != nil {
			return err
		}
		s.addTest(test{
			name:    name,
			code:    code,
			message: orDefault(msg, locale),
			params:  map[string]interface{}{name: limit},
			check: func(v interface{}) bool {
				return ok(length(v), limit)
			},
		})
		return nil
	}
}

func sliceLen(v interface{}) int {
	list, _ := asSlice(v)
	return len(list)
}

func stringTest(name, code, locale string, ok func(string) bool) method {
	return func(s *Schema, args []interface{}) error {
		msg, err := messageArg(args, 0, 1)
		if err != nil {
			return err
		}
		s.addTest(test{
			name:    name,
			code:    code,
			message: orDefault(msg, locale),
			check: func(v interface{}) bool {
				return ok(v.(string))
			},
		})
		return nil
	}
}

// formatTest builds a string test from a named format checker. Unknown names
// panic at package init.
func formatTest(name, locale string, excludeEmpty bool) method {
	valid, ok := schema.GetFormatValidator(name)
	if !ok {
		panic("yup: no format validator named " + name)
	}
	return func(s *Schema, args []interface{}) error {
		msg, err := messageArg(args, 0, 1)
		if err != nil {
			return err
		}
		s.addTest(test{
			name:    name,
			code:    schema.CodeFormat,
			message: orDefault(msg, locale),
			check: func(v interface{}) bool {
				str := v.(string)
				if str == "" && excludeEmpty {
					return true
				}
				return valid(str)
			},
		})
		return nil
	}
}

func stringMatches(s *Schema, args []interface{}) error {
	if err := arity(args, 1, 2); err != nil {
		return err
	}

	var re *pattern
	switch p := args[0].(type) {
	case *pattern:
		re = p
	case string:
		compiled, err := newPattern(p, "")
		if err != nil {
			return err
		}
		re = compiled
	default:
		return fmt.Errorf("expects a regular expression, got %s", describeArg(args[0]))
	}

	msg := ""
	name := "matches"
	excludeEmpty := false
	if len(args) == 2 {
		switch opt := args[1].(type) {
		case string:
			msg = opt
		case *orderedMap:
			for _, k := range opt.keys {
				v := opt.values[k]
				switch k {
				case "message":
					str, ok := v.(string)
					if !ok {
						return fmt.Errorf("option message must be a string")
					}
					msg = str
				case "excludeEmptyString":
					b, ok := v.(bool)
					if !ok {
						return fmt.Errorf("option excludeEmptyString must be a boolean")
					}
					excludeEmpty = b
				case "name":
					str, ok := v.(string)
					if !ok {
						return fmt.Errorf("option name must be a string")
					}
					name = str
				default:
					return fmt.Errorf("unknown option %q", k)
				}
			}
		default:
			return fmt.Errorf("expects a message or options object, got %s", describeArg(args[1]))
		}
	}

	s.tests = append(s.tests, test{
		name:    name,
		code:    schema.CodePattern,
		message: orDefault(msg, localeStringMatches),
		params:  map[string]interface{}{"regex": re},
		check: func(v interface{}) bool {
			str := v.(string)
			if str == "" && excludeEmpty {
				return true
			}
			return re.MatchString(str)
		},
	})
	return nil
}

func numberTest(name, param, code, locale string, ok func(v, limit float64) bool) method {
	return func(s *Schema, args []interface{}) error {
		if err := arity(args, 1, 2); err != nil {
			return err
		}
		limit, ok2 := toFloat(args[0])
		if !ok2 {
			return fmt.Errorf("expects a number, got %s", describeArg(args[0]))
		}
		msg, err := messageArg(args, 1, 2)
		if err != nil {
			return err
		}
		s.addTest(test{
			name:    name,
			code:    code,
			message: orDefault(msg, locale),
			params:  map[string]interface{}{param: limit},
			check: func(v interface{}) bool {
				f, _ := toFloat(v)
				return ok(f, limit)
			},
		})
		return nil
	}
}

func signTest(name, param, locale, code string, ok func(float64) bool) method {
	return func(s *Schema, args []interface{}) error {
		msg, err := messageArg(args, 0, 1)
		if err != nil {
			return err
		}
		s.addTest(test{
			name:    name,
			code:    code,
			message: orDefault(msg, locale),
			params:  map[string]interface{}{param: float64(0)},
			check: func(v interface{}) bool {
				f, _ := toFloat(v)
				return ok(f)
			},
		})
		return nil
	}
}

func booleanValue(want bool) method {
	return func(s *Schema, args []interface{}) error {
		msg, err := messageArg(args, 0, 1)
		if err != nil {
			return err
		}
		s.addTest(test{
			name:    "is-value",
			code:    schema.CodeOneOf,
			message: orDefault(msg, localeBooleanIsValue),
			params:  map[string]interface{}{"value": want},
			check: func(v interface{}) bool {
				return v.(bool) == want
			},
		})
		return nil
	}
}

func dateTest(name, code, locale string, ok func(v, limit time.Time) bool) method {
	return func(s *Schema, args []interface{}) error {
		if err := arity(args, 1, 2); err != nil {
			return err
		}
		limit, err := dateArg(args[0])
		if err != nil {
			return err
		}
		msg, err := messageArg(args, 1, 2)
		if err != nil {
			return err
		}
		s.addTest(test{
			name:    name,
			code:    code,
			message: orDefault(msg, locale),
			params:  map[string]interface{}{name: limit},
			check: func(v interface{}) bool {
				d, _ := asDate(v)
				return ok(d, limit)
			},
		})
		return nil
	}
}

func noop(s *Schema, args []interface{}) error {
	return arity(args, 0, 0)
}

func arity(args []interface{}, min, max int) error {
	switch {
	case len(args) < min && min == max:
		return fmt.Errorf("expects %d argument(s), got %d", min, len(args))
	case len(args) < min:
		return fmt.Errorf("expects at least %d argument(s), got %d", min, len(args))
	case len(args) > max:
		return fmt.Errorf("expects at most %d argument(s), got %d", max, len(args))
	}
	return nil
}

// messageArg returns the optional message at position i.
func messageArg(args []interface{}, i, max int) (string, error) {
	if err := arity(args, 0, max); err != nil {
		return "", err
	}
	if i >= len(args) || isUndefined(args[i]) {
		return "", nil
	}
	msg, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d must be a message string, got %s", i, describeArg(args[i]))
	}
	return msg, nil
}

func countArg(arg interface{}) (int, error) {
	f, ok := toFloat(arg)
	if !ok || f < 0 || math.Trunc(f) != f || f > math.MaxInt32 {
		return 0, fmt.Errorf("expects a non-negative integer, got %s", describeArg(arg))
	}
	return int(f), nil
}

const maxDateMillis = 8.64e15

func dateArg(arg interface{}) (time.Time, error) {
	switch v := arg.(type) {
	case time.Time:
		return v, nil
	case string:
		if d, ok := parseDate(v); ok {
			return d, nil
		}
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	if ms, ok := toFloat(arg); ok {
		// the range of an ECMAScript Date; NaN fails both comparisons
		if !(ms >= -maxDateMillis && ms <= maxDateMillis) {
			return time.Time{}, fmt.Errorf("invalid date %v", ms)
		}
		return time.UnixMilli(int64(ms)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("expects a date, got %s", describeArg(arg))
}

func valueListArgs(args []interface{}) ([]interface{}, string, error) {
	if err := arity(args, 1, 2); err != nil {
		return nil, "", err
	}
	list, ok := args[0].([]interface{})
	if !ok {
		return nil, "", fmt.Errorf("expects an array of values, got %s", describeArg(args[0]))
	}
	for i, v := range list {
		switch v.(type) {
		case *Schema, *orderedMap, []interface{}, *pattern:
			return nil, "", fmt.Errorf("element %d must be a primitive value", i)
		}
	}
	msg, err := messageArg(args, 1, 2)
	if err != nil {
		return nil, "", err
	}
	return list, msg, nil
}

func without(list []interface{}, v interface{}) []interface{} {
	out := list[:0]
	for _, item := range list {
		if !sameValue(item, v) {
			out = append(out, item)
		}
	}
	return out
}

func orDefault(msg, locale string) string {
	if msg == "" {
		return locale
	}
	return msg
}

func describeArg(arg interface{}) string {
	switch v := arg.(type) {
	case *Schema:
		return string(v.kind) + " schema"
	case *pattern:
		return "regular expression"
	case *orderedMap:
		return "object"
	case []interface{}:
		return "array"
	case UndefinedValue:
		return "undefined"
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("string %q", v)
	}
	return fmt.Sprintf("%T %v", arg, arg)
}
