package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Themis/pkg/host"
	"github.com/wehubfusion/Themis/pkg/node"
	"github.com/wehubfusion/Themis/pkg/schema"
	"github.com/wehubfusion/Themis/pkg/schema/jsonschema"
)

// recordingHost tracks which items had their rules read.
type recordingHost struct {
	*host.StaticHost
	visited []int
}

func (h *recordingHost) RuleConfig(itemIndex int) ([]node.Rule, error) {
	h.visited = append(h.visited, itemIndex)
	return h.StaticHost.RuleConfig(itemIndex)
}

type rule struct {
	field  interface{}
	schema string
}

func params(rules ...rule) map[string]interface{} {
	list := make([]interface{}, 0, len(rules))
	for _, r := range rules {
		list = append(list, map[string]interface{}{
			node.ParamFieldValue:       r.field,
			node.ParamValidationSchema: r.schema,
		})
	}
	return map[string]interface{}{
		node.ParamValidations: map[string]interface{}{node.ParamValidation: list},
	}
}

func batch(n int) []node.Item {
	items := make([]node.Item, n)
	for i := range items {
		items[i] = node.Item{JSON: map[string]interface{}{"n": i}}
	}
	return items
}

// rejectBad fails any subject equal to "bad" and counts compilations.
func rejectBad(compiles *int) schema.Compiler {
	return schema.CompilerFunc(func(source string) (schema.Validator, error) {
		*compiles++
		return schema.ValidatorFunc(func(value interface{}) error {
			if value == "bad" {
				return schema.NewValidationError(schema.Violation{Message: source + " rejected bad", Code: schema.CodeKeyword})
			}
			return nil
		}), nil
	})
}

func newRecordingHost(items []node.Item, cfg host.Config) *recordingHost {
	cfg.NodeName = "Validate"
	cfg.NodeType = "test"
	return &recordingHost{StaticHost: host.New(items, cfg)}
}

func TestRunWithoutRules(t *testing.T) {
	items := batch(3)
	for _, continueOnFail := range []bool{false, true} {
		h := newRecordingHost(items, host.Config{ContinueOnFail: continueOnFail})
		compiles := 0

		out, err := Run(context.Background(), h, rejectBad(&compiles), Options{})
		require.NoError(t, err)
		require.Equal(t, items, out)
		require.Zero(t, compiles)
	}
}

func TestRunSkipsBlankRules(t *testing.T) {
	items := batch(2)
	h := newRecordingHost(items, host.Config{Parameters: params(
		rule{field: "", schema: "anything"},
		rule{field: nil, schema: "anything"},
		rule{field: "bad", schema: "   "},
	)})
	metrics := NewMetricsCollector()
	compiles := 0

	out, err := Run(context.Background(), h, rejectBad(&compiles), Options{}.WithMetrics(metrics))
	require.NoError(t, err)
	require.Equal(t, items, out)
	require.Zero(t, compiles)
	require.Equal(t, Metrics{
		ItemsPassed:      2,
		RulesSkipped:     6,
		ProcessingTimeNs: metrics.GetMetrics().ProcessingTimeNs,
	}, metrics.GetMetrics())
}

func TestRunFailFastHaltsAtFailingItem(t *testing.T) {
	items := batch(4)
	good := params(rule{field: "ok", schema: "s"})
	h := newRecordingHost(items, host.Config{
		Parameters:     good,
		ItemParameters: []map[string]interface{}{nil, nil, params(rule{field: "bad", schema: "s"})},
	})
	compiles := 0

	out, err := Run(context.Background(), h, rejectBad(&compiles), Options{})
	require.Error(t, err)
	require.Nil(t, out)
	require.Equal(t, 2, node.ItemIndexOf(err))
	require.True(t, schema.IsValidationError(err))
	require.EqualError(t, err, "node Validate [test] failed at item 2: s rejected bad")
	require.Equal(t, []int{0, 1, 2}, h.visited)
}

func TestRunContinueOnFailTagsFailingItem(t *testing.T) {
	items := batch(4)
	h := newRecordingHost(items, host.Config{
		ContinueOnFail: true,
		Parameters:     params(rule{field: "ok", schema: "s"}),
		ItemParameters: []map[string]interface{}{nil, params(rule{field: "bad", schema: "s"})},
	})
	metrics := NewMetricsCollector()
	compiles := 0

	out, err := Run(context.Background(), h, rejectBad(&compiles), Options{}.WithMetrics(metrics))
	require.NoError(t, err)
	require.Len(t, out, 4)
	require.Equal(t, []int{0, 1, 2, 3}, h.visited)

	for i, item := range out {
		if i == 1 {
			continue
		}
		require.Equal(t, items[i], item)
	}
	require.Equal(t, map[string]interface{}{"n": 1, "error": "s rejected bad"}, out[1].JSON)
	require.Equal(t, &node.PairedItem{Item: 1}, out[1].PairedItem)

	// input is not mutated
	require.NotContains(t, items[1].JSON, "error")
	require.Nil(t, items[1].PairedItem)

	m := metrics.GetMetrics()
	require.Equal(t, int64(3), m.ItemsPassed)
	require.Equal(t, int64(1), m.ItemsFailed)
	require.InDelta(t, 25.0, metrics.FailureRate(), 0.001)
}

func TestRunStopsAtFirstFailingRule(t *testing.T) {
	h := newRecordingHost(batch(1), host.Config{
		ContinueOnFail: true,
		Parameters: params(
			rule{field: "ok", schema: "first"},
			rule{field: "bad", schema: "second"},
			rule{field: "bad", schema: "third"},
		),
	})
	compiles := 0

	out, err := Run(context.Background(), h, rejectBad(&compiles), Options{})
	require.NoError(t, err)
	require.Equal(t, "second rejected bad", out[0].JSON["error"])
	require.Equal(t, 2, compiles)
}

func TestRunMalformedSchema(t *testing.T) {
	compiler, err := jsonschema.NewCompiler()
	require.NoError(t, err)
	cfg := host.Config{Parameters: params(rule{field: "x", schema: `{"type": `})}

	h := newRecordingHost(batch(2), cfg)
	_, err = Run(context.Background(), h, compiler, Options{})
	require.Error(t, err)
	require.True(t, schema.IsCompileError(err))
	require.Equal(t, 0, node.ItemIndexOf(err))
	require.Equal(t, []int{0}, h.visited)

	cfg.ContinueOnFail = true
	h = newRecordingHost(batch(2), cfg)
	out, err := Run(context.Background(), h, compiler, Options{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i, item := range out {
		require.Contains(t, item.JSON["error"], "invalid schema")
		require.Equal(t, i, item.PairedItem.Item)
	}
}

func TestRunWithJSONSchema(t *testing.T) {
	compiler, err := jsonschema.NewCompiler()
	require.NoError(t, err)
	objectSchema := `{"type": "object", "properties": {"name": {"type": "string"}}, "required": ["name"]}`

	items := batch(3)
	h := newRecordingHost(items, host.Config{
		ContinueOnFail: true,
		ItemParameters: []map[string]interface{}{
			params(rule{field: `{"name": "Ada"}`, schema: objectSchema}),
			params(rule{field: `{"age": 3}`, schema: objectSchema}),
			params(rule{field: "hello", schema: `{"type": "string", "minLength": 2}`}),
		},
	})

	out, err := Run(context.Background(), h, compiler, Options{})
	require.NoError(t, err)
	require.Equal(t, items[0], out[0])
	require.Contains(t, out[1].JSON["error"], "name")
	require.Equal(t, items[2], out[2])
}

func TestRunRuleConfigError(t *testing.T) {
	broken := map[string]interface{}{node.ParamValidations: "not a collection"}
	compiles := 0

	h := newRecordingHost(batch(2), host.Config{Parameters: broken})
	_, err := Run(context.Background(), h, rejectBad(&compiles), Options{})
	require.ErrorIs(t, err, node.ErrInvalidParameters)
	require.Equal(t, 0, node.ItemIndexOf(err))

	h = newRecordingHost(batch(2), host.Config{Parameters: broken, ContinueOnFail: true})
	out, err := Run(context.Background(), h, rejectBad(&compiles), Options{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Contains(t, out[1].JSON["error"], node.ErrInvalidParameters.Error())
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	compiles := 0

	h := newRecordingHost(batch(2), host.Config{ContinueOnFail: true})
	out, err := Run(ctx, h, rejectBad(&compiles), Options{})
	require.Nil(t, out)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 0, node.ItemIndexOf(err))
	require.Empty(t, h.visited)
}

func TestLiteralSubject(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  interface{}
	}{
		{name: "plain text", value: "hello", want: "hello"},
		{name: "object text", value: ` {"a": 1} `, want: map[string]interface{}{"a": float64(1)}},
		{name: "array text", value: `[1, "x"]`, want: []interface{}{float64(1), "x"}},
		{name: "broken json stays text", value: `{"a":`, want: `{"a":`},
		{name: "number text stays text", value: "42", want: "42"},
		{name: "non-string", value: 42, want: 42},
		{name: "decoded object", value: map[string]interface{}{"a": 1}, want: map[string]interface{}{"a": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LiteralSubject(node.Item{}, node.Rule{FieldValue: tt.value})
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultMetricsCollector(t *testing.T) {
	m := NewMetricsCollector()
	require.Zero(t, m.AverageProcessingTime())
	require.Zero(t, m.FailureRate())

	m.RecordPassed(100)
	m.RecordPassed(300)
	m.RecordFailed()
	m.RecordSkipped()

	require.Equal(t, Metrics{ItemsPassed: 2, ItemsFailed: 1, RulesSkipped: 1, ProcessingTimeNs: 400}, m.GetMetrics())
	require.EqualValues(t, 200, m.AverageProcessingTime())
	require.InDelta(t, 33.333, m.FailureRate(), 0.001)

	m.Reset()
	require.Equal(t, Metrics{}, m.GetMetrics())
}
