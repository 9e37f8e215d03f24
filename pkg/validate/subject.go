package validate

import (
	"encoding/json"
	"strings"

	"github.com/wehubfusion/Themis/pkg/node"
)

// SubjectResolver maps a rule configured on an item to the value the rule's
// schema validates.
type SubjectResolver func(item node.Item, rule node.Rule) interface{}

// LiteralSubject validates the rule's field value itself. Text holding a JSON
// object or array is decoded first, since hosts hand json-typed fields over as
// text. Any other value is used as is.
func LiteralSubject(_ node.Item, rule node.Rule) interface{} {
	text, ok := rule.FieldValue.(string)
	if !ok {
		return rule.FieldValue
	}
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return text
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return text
	}
	return decoded
}
