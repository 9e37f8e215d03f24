package yup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
)

// namespace is the optional receiver of constructor calls, as in yup.string().
const namespace = "yup"

// orderedMap is an object literal with its keys in source order.
type orderedMap struct {
	keys   []string
	values map[string]interface{}
}

// Parse compiles a yup expression into a Schema.
func Parse(source string) (*Schema, error) {
	src := strings.TrimSpace(source)
	src = strings.TrimSpace(strings.TrimSuffix(src, ";"))
	if src == "" {
		return nil, newExpressionError(ErrorTypeSyntax, "empty expression", 0)
	}

	program, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		return nil, syntaxError(err)
	}
	if len(program.Body) != 1 {
		return nil, newExpressionError(ErrorTypeSyntax, "expected a single schema expression", 0)
	}
	stmt, ok := program.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, newExpressionError(ErrorTypeSecurity, "only a schema expression is allowed", offset(program.Body[0]))
	}

	v, err := evalExpression(stmt.Expression)
	if err != nil {
		return nil, err
	}
	s, ok := v.(*Schema)
	if !ok {
		return nil, newExpressionError(ErrorTypeArgument,
			fmt.Sprintf("expression must build a schema, got %s", describeArg(v)), offset(stmt.Expression))
	}
	return s, nil
}

func syntaxError(err error) error {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		e := newExpressionError(ErrorTypeSyntax, list[0].Message, 0)
		e.Line = list[0].Position.Line
		e.Column = list[0].Position.Column
		return e
	}
	return newExpressionError(ErrorTypeSyntax, err.Error(), 0)
}

// evalExpression maps an allowed syntax node to its value: a *Schema for
// schema calls, otherwise a literal.
func evalExpression(expr ast.Expression) (interface{}, error) {
	switch e := expr.(type) {
	case *ast.CallExpression:
		return evalCall(e)
	case *ast.StringLiteral:
		return e.Value.String(), nil
	case *ast.NumberLiteral:
		return numberValue(e)
	case *ast.BooleanLiteral:
		return e.Value, nil
	case *ast.NullLiteral:
		return nil, nil
	case *ast.RegExpLiteral:
		p, err := newPattern(e.Pattern, e.Flags)
		if err != nil {
			return nil, newExpressionError(ErrorTypeArgument, err.Error(), offset(e))
		}
		return p, nil
	case *ast.TemplateLiteral:
		return templateValue(e)
	case *ast.ArrayLiteral:
		list := make([]interface{}, 0, len(e.Value))
		for _, elem := range e.Value {
			if elem == nil {
				return nil, newExpressionError(ErrorTypeSyntax, "array holes are not allowed", offset(e))
			}
			v, err := evalExpression(elem)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case *ast.ObjectLiteral:
		return objectValue(e)
	case *ast.UnaryExpression:
		return unaryValue(e)
	case *ast.Identifier:
		if e.Name.String() == "undefined" {
			return Undefined, nil
		}
		return nil, newExpressionError(ErrorTypeSecurity,
			fmt.Sprintf("identifier %q is not allowed", e.Name.String()), offset(e))
	case *ast.NewExpression:
		return newDateValue(e)
	}
	return nil, newExpressionError(ErrorTypeSecurity,
		fmt.Sprintf("%s is not allowed", nodeName(expr)), offset(expr))
}

// evalCall handles constructor calls and method chains.
func evalCall(call *ast.CallExpression) (interface{}, error) {
	args, err := evalArgs(call.ArgumentList)
	if err != nil {
		return nil, err
	}

	switch callee := call.Callee.(type) {
	case *ast.Identifier:
		return construct(callee.Name.String(), args, call)
	case *ast.DotExpression:
		name := callee.Identifier.Name.String()
		if id, ok := callee.Left.(*ast.Identifier); ok && id.Name.String() == namespace {
			return construct(name, args, call)
		}

		recv, err := evalExpression(callee.Left)
		if err != nil {
			return nil, err
		}
		s, ok := recv.(*Schema)
		if !ok {
			return nil, newExpressionError(ErrorTypeSecurity,
				fmt.Sprintf("method %q called on %s", name, describeArg(recv)), offset(callee))
		}
		m, ok := lookupMethod(s.kind, name)
		if !ok {
			return nil, newExpressionError(ErrorTypeSecurity,
				fmt.Sprintf("method %q is not supported on %s schema", name, s.kind), offset(callee))
		}
		if err := m(s, args); err != nil {
			return nil, newExpressionError(ErrorTypeArgument, fmt.Sprintf("%s(): %v", name, err), offset(call))
		}
		return s, nil
	}
	return nil, newExpressionError(ErrorTypeSecurity,
		fmt.Sprintf("call of %s is not allowed", nodeName(call.Callee)), offset(call))
}

func construct(name string, args []interface{}, call *ast.CallExpression) (*Schema, error) {
	kind, ok := constructors[name]
	if !ok {
		return nil, newExpressionError(ErrorTypeSecurity, fmt.Sprintf("unknown schema type %q", name), offset(call))
	}
	s := newSchema(kind)
	if err := applyConstructor(s, args); err != nil {
		return nil, newExpressionError(ErrorTypeArgument, fmt.Sprintf("%s(): %v", name, err), offset(call))
	}
	return s, nil
}

func evalArgs(list []ast.Expression) ([]interface{}, error) {
	args := make([]interface{}, 0, len(list))
	for _, a := range list {
		v, err := evalExpression(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

func numberValue(e *ast.NumberLiteral) (interface{}, error) {
	switch n := e.Value.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return nil, newExpressionError(ErrorTypeSyntax, fmt.Sprintf("invalid number %s", e.Literal), offset(e))
}

func unaryValue(e *ast.UnaryExpression) (interface{}, error) {
	if e.Operator != token.MINUS && e.Operator != token.PLUS {
		return nil, newExpressionError(ErrorTypeSecurity,
			fmt.Sprintf("operator %s is not allowed", e.Operator), offset(e))
	}
	lit, ok := e.Operand.(*ast.NumberLiteral)
	if !ok {
		return nil, newExpressionError(ErrorTypeSecurity, "sign is only allowed on number literals", offset(e))
	}
	v, err := numberValue(lit)
	if err != nil {
		return nil, err
	}
	if e.Operator == token.MINUS {
		return -v.(float64), nil
	}
	return v, nil
}

// templateValue accepts template strings whose substitutions are plain
// identifiers, keeping them as message placeholders: `${path} is bad`.
func templateValue(e *ast.TemplateLiteral) (interface{}, error) {
	if e.Tag != nil {
		return nil, newExpressionError(ErrorTypeSecurity, "tagged templates are not allowed", offset(e))
	}
	var b strings.Builder
	for i, elem := range e.Elements {
		b.WriteString(elem.Parsed.String())
		if i >= len(e.Expressions) {
			continue
		}
		id, ok := e.Expressions[i].(*ast.Identifier)
		if !ok {
			return nil, newExpressionError(ErrorTypeSecurity,
				"template substitutions must be plain placeholders", offset(e.Expressions[i]))
		}
		b.WriteString("${" + id.Name.String() + "}")
	}
	return b.String(), nil
}

func objectValue(e *ast.ObjectLiteral) (interface{}, error) {
	obj := &orderedMap{values: make(map[string]interface{}, len(e.Value))}
	for _, prop := range e.Value {
		keyed, ok := prop.(*ast.PropertyKeyed)
		if !ok || keyed.Computed || keyed.Kind != ast.PropertyKindValue {
			return nil, newExpressionError(ErrorTypeSecurity,
				"only key: value properties are allowed in objects", offset(e))
		}

		var key string
		switch k := keyed.Key.(type) {
		case *ast.StringLiteral:
			key = k.Value.String()
		case *ast.Identifier:
			key = k.Name.String()
		case *ast.NumberLiteral:
			key = k.Literal
		default:
			return nil, newExpressionError(ErrorTypeSecurity, "object keys must be names or strings", offset(keyed.Key))
		}

		v, err := evalExpression(keyed.Value)
		if err != nil {
			return nil, err
		}
		if _, exists := obj.values[key]; !exists {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = v
	}
	return obj, nil
}

// newDateValue allows new Date(<string or number>) as a date argument.
func newDateValue(e *ast.NewExpression) (interface{}, error) {
	id, ok := e.Callee.(*ast.Identifier)
	if !ok || id.Name.String() != "Date" {
		return nil, newExpressionError(ErrorTypeSecurity, "only new Date(...) is allowed", offset(e))
	}
	args, err := evalArgs(e.ArgumentList)
	if err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, newExpressionError(ErrorTypeArgument, "new Date() expects one argument", offset(e))
	}
	d, err := dateArg(args[0])
	if err != nil {
		return nil, newExpressionError(ErrorTypeArgument, err.Error(), offset(e))
	}
	return d, nil
}

// plainValue converts a parsed literal to plain Go data.
func plainValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case *Schema:
		return nil, fmt.Errorf("expects a value, got a schema")
	case *pattern:
		return nil, fmt.Errorf("expects a value, got a regular expression")
	case *orderedMap:
		out := make(map[string]interface{}, len(val.keys))
		for _, k := range val.keys {
			pv, err := plainValue(val.values[k])
			if err != nil {
				return nil, err
			}
			out[k] = pv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			pv, err := plainValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = pv
		}
		return out, nil
	}
	return v, nil
}

func offset(n ast.Node) int {
	if n == nil {
		return 0
	}
	return int(n.Idx0())
}

func nodeName(n ast.Node) string {
	switch n.(type) {
	case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral:
		return "function"
	case *ast.AssignExpression:
		return "assignment"
	case *ast.BinaryExpression:
		return "operator"
	case *ast.BracketExpression:
		return "index expression"
	case *ast.DotExpression:
		return "property access"
	case *ast.SequenceExpression:
		return "comma expression"
	case *ast.ConditionalExpression:
		return "conditional"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast.")
}
