// Package yupdatavalidator implements the "Yup Data Validator" node: each rule
// validates a literal value against a JSON Schema document.
package yupdatavalidator

import (
	"context"

	"github.com/wehubfusion/Themis/pkg/node"
	"github.com/wehubfusion/Themis/pkg/schema"
	"github.com/wehubfusion/Themis/pkg/schema/jsonschema"
	"github.com/wehubfusion/Themis/pkg/validate"
)

// Type is the plugin type the node registers under.
const Type = "yupDataValidator"

// DefaultSchema is the schema text a new rule starts with.
const DefaultSchema = `{
  "type": "object"
}`

// Node validates literal values against JSON Schema text.
type Node struct {
	compiler schema.Compiler
	opts     validate.Options
}

var _ node.Node = (*Node)(nil)

// New creates a node that compiles rule schemas with compiler.
// The subject resolver in opts is always replaced by validate.LiteralSubject.
func New(compiler schema.Compiler, opts validate.Options) *Node {
	return &Node{
		compiler: compiler,
		opts:     opts.WithResolver(validate.LiteralSubject),
	}
}

// NewDefault creates a node backed by a draft 2020-12 compiler.
func NewDefault(opts validate.Options) (*Node, error) {
	compiler, err := jsonschema.NewCompiler()
	if err != nil {
		return nil, err
	}
	return New(compiler, opts), nil
}

// Description returns the node's form metadata.
func (n *Node) Description() node.Description {
	return node.Description{
		DisplayName:  "Yup Data Validator",
		Name:         Type,
		Group:        []string{"transform"},
		Version:      1,
		Description:  "Yup Data Validator Node",
		Defaults:     map[string]string{"name": "Yup Data Validator"},
		Inputs:       []string{node.ConnectionMain},
		Outputs:      []string{node.ConnectionMain},
		UsableAsTool: true,
		Properties: []node.Property{
			node.ValidationsProperty(
				node.Property{
					DisplayName: "Field Value",
					Name:        node.ParamFieldValue,
					Type:        node.PropertyTypeJSON,
					Default:     "{}",
					Description: "Drag a field from the left or insert the whole JSON item",
					Placeholder: "{{$json}}",
					Required:    true,
				},
				node.Property{
					DisplayName: "Validation Schema",
					Name:        node.ParamValidationSchema,
					Type:        node.PropertyTypeJSON,
					Default:     DefaultSchema,
					Description: "The JSON Schema to validate the data against",
					Required:    true,
				},
			),
		},
	}
}

// Execute validates every item of the host's batch.
func (n *Node) Execute(ctx context.Context, host node.Host) ([]node.Item, error) {
	return validate.Run(ctx, host, n.compiler, n.opts)
}
