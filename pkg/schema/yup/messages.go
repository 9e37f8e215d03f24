package yup

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Default messages. ${path} and the test parameters are interpolated.
const (
	localeRequired = "${path} is a required field"
	localeDefined  = "${path} must be defined"
	localeNotNull  = "${path} cannot be null"
	localeOneOf    = "${path} must be one of the following values: ${values}"
	localeNotOneOf = "${path} must not be one of the following values: ${values}"

	localeStringLength    = "${path} must be exactly ${length} characters"
	localeStringMin       = "${path} must be at least ${min} characters"
	localeStringMax       = "${path} must be at most ${max} characters"
	localeStringMatches   = `${path} must match the following: "${regex}"`
	localeStringEmail     = "${path} must be a valid email"
	localeStringURL       = "${path} must be a valid URL"
	localeStringUUID      = "${path} must be a valid UUID"
	localeStringTrim      = "${path} must be a trimmed string"
	localeStringLowercase = "${path} must be a lowercase string"
	localeStringUppercase = "${path} must be a upper case string"

	localeNumberMin      = "${path} must be greater than or equal to ${min}"
	localeNumberMax      = "${path} must be less than or equal to ${max}"
	localeNumberLessThan = "${path} must be less than ${less}"
	localeNumberMoreThan = "${path} must be greater than ${more}"
	localeNumberPositive = "${path} must be a positive number"
	localeNumberNegative = "${path} must be a negative number"
	localeNumberInteger  = "${path} must be an integer"

	localeDateMin = "${path} field must be later than ${min}"
	localeDateMax = "${path} field must be at earlier than ${max}"

	localeBooleanIsValue = "${path} field must be ${value}"

	localeArrayMin    = "${path} field must have at least ${min} items"
	localeArrayMax    = "${path} field must have less than or equal to ${max} items"
	localeArrayLength = "${path} must have ${length} items"

	localeObjectNoUnknown = "${path} field has unspecified keys: ${unknown}"
)

var placeholder = regexp.MustCompile(`\$\{\s*((?:\w|\.)+)\s*\}`)

// formatMessage interpolates ${key} placeholders. Unknown keys render as
// "undefined".
func formatMessage(msg string, params map[string]interface{}) string {
	return placeholder.ReplaceAllStringFunc(msg, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := params[key]
		if !ok {
			return printValue(Undefined, false)
		}
		return printValue(v, false)
	})
}

// typeErrorMessage is the message for a value of the wrong base type, with
// path already substituted.
func typeErrorMessage(s *Schema, value interface{}, path string) string {
	if s.kind == KindTuple {
		if list, ok := asSlice(value); ok {
			want := len(s.elems)
			switch {
			case len(list) < want:
				return fmt.Sprintf("%s tuple value has too few items, expected a length of %d but got %d for value: `%s`",
					path, want, len(list), printValue(value, true))
			case len(list) > want:
				return fmt.Sprintf("%s tuple value has too many items, expected a length of %d but got %d for value: `%s`",
					path, want, len(list), printValue(value, true))
			}
		}
	}
	if s.kind == KindMixed {
		return fmt.Sprintf("%s must match the configured type. The validated value was: `%s`.", path, printValue(value, true))
	}
	return fmt.Sprintf("%s must be a `%s` type, but the final value was: `%s`.", path, s.kind, printValue(value, true))
}

// printValue renders a value for a message. Strings are quoted only when
// quoteStrings is set.
func printValue(v interface{}, quoteStrings bool) string {
	if s, ok := printSimpleValue(v, quoteStrings); ok {
		return s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func printSimpleValue(v interface{}, quoteStrings bool) (string, bool) {
	switch val := v.(type) {
	case UndefinedValue:
		return "undefined", true
	case nil:
		return "null", true
	case bool:
		return strconv.FormatBool(val), true
	case string:
		if quoteStrings {
			return `"` + val + `"`, true
		}
		return val, true
	case json.Number:
		return val.String(), true
	case time.Time:
		if val.IsZero() {
			return "Invalid Date", true
		}
		return val.UTC().Format("2006-01-02T15:04:05.000Z"), true
	case *pattern:
		return val.String(), true
	}
	if f, ok := toFloat(v); ok {
		return printNumber(f), true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return "NaN", true
	}
	return "", false
}

func printNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0 && math.Signbit(f):
		return "-0"
	case math.Abs(f) >= 1e21:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// joinValues renders a oneOf/notOneOf list the way Array.join does.
func joinValues(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if isAbsent(v) {
			continue
		}
		parts[i] = printValue(v, false)
	}
	return strings.Join(parts, ", ")
}
