package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Themis/pkg/node"
)

func rulesParams(fieldValue interface{}, schemaText string) map[string]interface{} {
	return map[string]interface{}{
		"validations": map[string]interface{}{
			"validation": []interface{}{
				map[string]interface{}{"fieldValue": fieldValue, "validationSchema": schemaText},
			},
		},
	}
}

func TestRuleConfig(t *testing.T) {
	items := []node.Item{{JSON: map[string]interface{}{"a": 1}}, {JSON: map[string]interface{}{"a": 2}}}
	h := New(items, Config{
		NodeName:       "Check",
		NodeType:       "yupValidation",
		ContinueOnFail: true,
		Parameters:     rulesParams("a", "number()"),
		ItemParameters: []map[string]interface{}{nil, rulesParams("b", "string()")},
	})

	require.Equal(t, items, h.Items())
	require.True(t, h.ContinueOnFail())
	require.Equal(t, "Check", h.NodeName())
	require.Equal(t, "yupValidation", h.NodeType())

	rules, err := h.RuleConfig(0)
	require.NoError(t, err)
	require.Equal(t, []node.Rule{{FieldValue: "a", ValidationSchema: "number()"}}, rules)

	rules, err = h.RuleConfig(1)
	require.NoError(t, err)
	require.Equal(t, []node.Rule{{FieldValue: "b", ValidationSchema: "string()"}}, rules)

	_, err = h.RuleConfig(2)
	require.Error(t, err)
}

func TestRuleConfigWithoutParameters(t *testing.T) {
	h := New([]node.Item{{JSON: map[string]interface{}{}}}, Config{})
	rules, err := h.RuleConfig(0)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestScopedError(t *testing.T) {
	h := New(nil, Config{NodeName: "Check", NodeType: "yupDataValidator"})
	cause := errors.New("this is a required field")

	err := h.ScopedError(cause, 3)
	require.ErrorIs(t, err, cause)
	require.Equal(t, 3, node.ItemIndexOf(err))
	require.EqualError(t, err, "node Check [yupDataValidator] failed at item 3: this is a required field")

	// already scoped errors are re-indexed, not wrapped again
	again := h.ScopedError(err, 5)
	require.Same(t, err, again)
	require.Equal(t, 5, node.ItemIndexOf(again))
}
