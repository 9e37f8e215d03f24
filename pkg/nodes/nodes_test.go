package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Themis/pkg/host"
	"github.com/wehubfusion/Themis/pkg/node"
	"github.com/wehubfusion/Themis/pkg/nodes/yupdatavalidator"
	"github.com/wehubfusion/Themis/pkg/nodes/yupvalidation"
	"github.com/wehubfusion/Themis/pkg/validate"
)

func ruleParams(fieldValue interface{}, schemaText string) map[string]interface{} {
	return map[string]interface{}{
		node.ParamValidations: map[string]interface{}{
			node.ParamValidation: []interface{}{
				map[string]interface{}{
					node.ParamFieldValue:       fieldValue,
					node.ParamValidationSchema: schemaText,
				},
			},
		},
	}
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry(validate.DefaultOptions())
	require.NoError(t, err)
	return r
}

func TestDefaultRegistry(t *testing.T) {
	r := newRegistry(t)
	require.Equal(t, []string{yupdatavalidator.Type, yupvalidation.Type}, r.Types())
	require.True(t, r.Has(yupvalidation.Type))
	require.False(t, r.Has("n8n-nodes-base.set"))

	_, err := r.Create("n8n-nodes-base.set")
	require.ErrorIs(t, err, node.ErrUnknownNodeType)

	n, err := r.Create(yupdatavalidator.Type)
	require.NoError(t, err)
	require.IsType(t, &yupdatavalidator.Node{}, n)

	descriptions := r.Descriptions()
	require.Len(t, descriptions, 2)
	require.Equal(t, "Yup Data Validator", descriptions[0].DisplayName)
	require.Equal(t, "Yup Validation", descriptions[1].DisplayName)
}

func TestRegistryOverwrite(t *testing.T) {
	r := NewRegistry()
	r.Register("custom", func() node.Node { return yupvalidation.NewDefault(validate.Options{}) })
	r.Register("custom", func() node.Node {
		n, err := yupdatavalidator.NewDefault(validate.Options{})
		require.NoError(t, err)
		return n
	})

	n, err := r.Create("custom")
	require.NoError(t, err)
	require.Equal(t, yupdatavalidator.Type, n.Description().Name)
	require.Equal(t, []string{"custom"}, r.Types())
}

func TestDeclaredFieldsMatchLoop(t *testing.T) {
	r := newRegistry(t)
	for _, d := range r.Descriptions() {
		require.Equal(t, []string{node.ParamFieldValue, node.ParamValidationSchema}, d.FieldNames(), d.Name)
		require.Equal(t, node.ParamValidations, d.Properties[0].Name)
		require.Equal(t, node.ParamValidation, d.Properties[0].Options[0].Name)
	}
}

func TestDataValidatorNode(t *testing.T) {
	r := newRegistry(t)
	n, err := r.Create(yupdatavalidator.Type)
	require.NoError(t, err)

	items := []node.Item{
		{JSON: map[string]interface{}{"id": 1}},
		{JSON: map[string]interface{}{"id": 2}},
		{JSON: map[string]interface{}{"id": 3}},
	}
	personSchema := `{
		"type": "object",
		"properties": {
			"name": {"type": "string", "required": true},
			"age": {"type": "integer", "minimum": 0}
		}
	}`

	h := host.New(items, host.Config{
		NodeName:       "Validate person",
		NodeType:       yupdatavalidator.Type,
		ContinueOnFail: true,
		ItemParameters: []map[string]interface{}{
			ruleParams(`{"name": "Ada", "age": 36}`, personSchema),
			ruleParams(`{"age": -1}`, personSchema),
			ruleParams(map[string]interface{}{"name": "Grace"}, personSchema),
		},
	})

	out, err := n.Execute(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, items[0], out[0])
	require.Equal(t, items[2], out[2])

	msg, ok := out[1].JSON["error"].(string)
	require.True(t, ok)
	require.Contains(t, msg, "2 errors occurred")
	require.Contains(t, msg, "name")
	require.Equal(t, &node.PairedItem{Item: 1}, out[1].PairedItem)
}

func TestDataValidatorDefaultSchema(t *testing.T) {
	n, err := yupdatavalidator.NewDefault(validate.Options{})
	require.NoError(t, err)

	for _, tt := range []struct {
		name   string
		value  interface{}
		failed bool
	}{
		{name: "empty object text", value: "{}"},
		{name: "object", value: map[string]interface{}{"a": 1}},
		{name: "plain text", value: "hello", failed: true},
		{name: "array text", value: "[1]", failed: true},
		{name: "number", value: 42, failed: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := host.New([]node.Item{{JSON: map[string]interface{}{}}}, host.Config{
				NodeName:   "Validate",
				NodeType:   yupdatavalidator.Type,
				Parameters: ruleParams(tt.value, yupdatavalidator.DefaultSchema),
			})
			_, err := n.Execute(context.Background(), h)
			if tt.failed {
				require.Error(t, err)
				require.Equal(t, 0, node.ItemIndexOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestYupValidationNode(t *testing.T) {
	r := newRegistry(t)
	n, err := r.Create(yupvalidation.Type)
	require.NoError(t, err)

	items := []node.Item{
		{JSON: map[string]interface{}{"email": "ada@example.com", "age": 36}},
		{JSON: map[string]interface{}{"email": "not an email", "age": 36}},
		{JSON: map[string]interface{}{"age": 17}},
	}
	params := map[string]interface{}{
		node.ParamValidations: map[string]interface{}{
			node.ParamValidation: []interface{}{
				map[string]interface{}{node.ParamFieldValue: "email", node.ParamValidationSchema: "string().email().required()"},
				map[string]interface{}{node.ParamFieldValue: "age", node.ParamValidationSchema: "number().min(18)"},
			},
		},
	}

	h := host.New(items, host.Config{
		NodeName:       "Check signup",
		NodeType:       yupvalidation.Type,
		ContinueOnFail: true,
		Parameters:     params,
	})
	out, err := n.Execute(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, items[0], out[0])
	require.Equal(t, "this must be a valid email", out[1].JSON["error"])
	require.Equal(t, "this is a required field", out[2].JSON["error"])

	h = host.New(items, host.Config{
		NodeName:   "Check signup",
		NodeType:   yupvalidation.Type,
		Parameters: params,
	})
	out, err = n.Execute(context.Background(), h)
	require.Nil(t, out)
	require.EqualError(t, err, "node Check signup [yupValidation] failed at item 1: this must be a valid email")
}

func TestYupValidationRejectsCode(t *testing.T) {
	n := yupvalidation.NewDefault(validate.Options{})
	h := host.New([]node.Item{{JSON: map[string]interface{}{"a": "x"}}}, host.Config{
		NodeName:       "Check",
		NodeType:       yupvalidation.Type,
		ContinueOnFail: true,
		Parameters:     ruleParams("a", `string().test(() => process.exit(1))`),
	})

	out, err := n.Execute(context.Background(), h)
	require.NoError(t, err)
	require.Contains(t, out[0].JSON["error"], "invalid schema")
}
