// Package node defines the contract between validation nodes and the workflow host
// that loads them.
package node

import "strings"

// PairedItem links an output item back to the input item it was derived from.
type PairedItem struct {
	// Item is the index of the input item in the current batch
	Item int `json:"item"`
}

// Item is one unit of data flowing through a workflow stage.
// The host owns the item; nodes only read it or emit a copy.
type Item struct {
	// JSON is the item payload
	JSON map[string]interface{} `json:"json"`
	// PairedItem is set on items produced from a specific input item
	PairedItem *PairedItem `json:"pairedItem,omitempty"`
}

// WithError returns a copy of the item with an "error" field added to its payload.
// The original item is left untouched.
func (i Item) WithError(itemIndex int, message string) Item {
	data := make(map[string]interface{}, len(i.JSON)+1)
	for k, v := range i.JSON {
		data[k] = v
	}
	data["error"] = message

	return Item{
		JSON:       data,
		PairedItem: &PairedItem{Item: itemIndex},
	}
}

// Rule is a single (subject, schema source) pair configured on a node.
type Rule struct {
	// FieldValue is the subject: a literal value or a field key depending on the node
	FieldValue interface{} `json:"fieldValue"`
	// ValidationSchema is the schema source text compiled by the node's validator
	ValidationSchema string `json:"validationSchema"`
}

// IsBlank reports whether the rule has no subject or no schema text.
// Blank rules are vacuously valid.
func (r Rule) IsBlank() bool {
	if strings.TrimSpace(r.ValidationSchema) == "" {
		return true
	}
	switch v := r.FieldValue.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}
