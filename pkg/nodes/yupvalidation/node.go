// Package yupvalidation implements the "Yup Validation" node: each rule names a
// field of the item and validates it against a yup expression such as
// string().required().
package yupvalidation

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/wehubfusion/Themis/pkg/node"
	"github.com/wehubfusion/Themis/pkg/schema"
	"github.com/wehubfusion/Themis/pkg/schema/yup"
	"github.com/wehubfusion/Themis/pkg/validate"
)

// Type is the plugin type the node registers under.
const Type = "yupValidation"

// DefaultSchema is the expression a new rule starts with.
const DefaultSchema = "string().required()"

// Node validates item fields against yup expressions.
type Node struct {
	compiler schema.Compiler
	opts     validate.Options
}

var _ node.Node = (*Node)(nil)

// New creates a node that compiles rule expressions with compiler.
// The subject resolver in opts is always replaced by FieldSubject.
func New(compiler schema.Compiler, opts validate.Options) *Node {
	return &Node{
		compiler: compiler,
		opts:     opts.WithResolver(FieldSubject),
	}
}

// NewDefault creates a node backed by a fresh yup compiler.
func NewDefault(opts validate.Options) *Node {
	return New(yup.NewCompiler(), opts)
}

// Description returns the node's form metadata.
func (n *Node) Description() node.Description {
	return node.Description{
		DisplayName:  "Yup Validation",
		Name:         Type,
		Group:        []string{"transform"},
		Version:      1,
		Description:  "Yup Validation Node",
		Defaults:     map[string]string{"name": "Yup Validation"},
		Inputs:       []string{node.ConnectionMain},
		Outputs:      []string{node.ConnectionMain},
		UsableAsTool: true,
		Properties: []node.Property{
			node.ValidationsProperty(
				node.Property{
					DisplayName: "Field Value",
					Name:        node.ParamFieldValue,
					Type:        node.PropertyTypeString,
					Default:     "",
					Description: "The key of the field to validate from the input data",
				},
				node.Property{
					DisplayName:      "Validation Schema",
					Name:             node.ParamValidationSchema,
					Type:             node.PropertyTypeString,
					Default:          DefaultSchema,
					Description:      `The Yup validation schema, DO NOT include "yup." (e.g., string().required())`,
					NoDataExpression: true,
				},
			),
		},
	}
}

// Execute validates every item of the host's batch.
func (n *Node) Execute(ctx context.Context, host node.Host) ([]node.Item, error) {
	return validate.Run(ctx, host, n.compiler, n.opts)
}

// fieldPath matches strings that read as a field key or gjson path, such as
// "email", "user.name" or "tags.1".
var fieldPath = regexp.MustCompile(`^[A-Za-z0-9_$-]+(\.[A-Za-z0-9_$-]+)*$`)

// FieldSubject resolves the value a rule validates.
//
// Hosts usually resolve expressions such as {{$json.email}} before the node
// runs, so a non-string field value is validated as it is. A string is read as
// a field of the item: a top-level key first, then a gjson path such as
// "user.name" or "tags.1". A string that names no field is validated as it is,
// unless it reads as a field path, in which case the field is missing and the
// subject is yup.Undefined.
func FieldSubject(item node.Item, rule node.Rule) interface{} {
	key, ok := rule.FieldValue.(string)
	if !ok {
		return rule.FieldValue
	}

	if v, ok := item.JSON[key]; ok {
		return v
	}

	if fieldPath.MatchString(key) {
		if data, err := json.Marshal(item.JSON); err == nil {
			if result := gjson.GetBytes(data, key); result.Exists() {
				return result.Value()
			}
		}
		return yup.Undefined
	}
	return key
}
