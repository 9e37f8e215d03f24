// Package jsonschema compiles JSON-Schema-like documents into validators.
//
// Property-level "required": true flags are folded into the parent object's
// "required" list before compiling, so schemas written for schema-to-yup
// compile unchanged.
package jsonschema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wehubfusion/Themis/pkg/schema"
)

// Draft names accepted by WithDraft.
const (
	Draft4    = "draft-04"
	Draft6    = "draft-06"
	Draft7    = "draft-07"
	Draft2019 = "draft-2019-09"
	Draft2020 = "draft-2020-12"
)

var drafts = map[string]*jsonschema.Draft{
	Draft4:    jsonschema.Draft4,
	Draft6:    jsonschema.Draft6,
	Draft7:    jsonschema.Draft7,
	Draft2019: jsonschema.Draft2019,
	Draft2020: jsonschema.Draft2020,
}

// Option configures a Compiler.
type Option func(*Compiler) error

// WithDraft sets the draft used for documents without a "$schema" keyword.
func WithDraft(name string) Option {
	return func(c *Compiler) error {
		d, ok := drafts[name]
		if !ok {
			return fmt.Errorf("unsupported JSON Schema draft %q", name)
		}
		c.draft = d
		return nil
	}
}

// WithLanguage sets the language violation messages are rendered in.
func WithLanguage(tag language.Tag) Option {
	return func(c *Compiler) error {
		c.printer = message.NewPrinter(tag)
		return nil
	}
}

// Compiler compiles schema text and caches the result by source.
// It is safe for concurrent use.
type Compiler struct {
	draft   *jsonschema.Draft
	printer *message.Printer

	mu    sync.RWMutex
	seq   int
	cache map[string]*Validator
}

var _ schema.Compiler = (*Compiler)(nil)

// NewCompiler creates a compiler defaulting to draft 2020-12.
func NewCompiler(opts ...Option) (*Compiler, error) {
	c := &Compiler{
		draft:   jsonschema.Draft2020,
		printer: message.NewPrinter(language.English),
		cache:   make(map[string]*Validator),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Compile implements schema.Compiler. Unparseable text and documents that are
// not valid schemas both yield a *schema.CompileError.
func (c *Compiler) Compile(source string) (schema.Validator, error) {
	return c.compile(source)
}

func (c *Compiler) compile(source string) (*Validator, error) {
	c.mu.RLock()
	if cached, ok := c.cache[source]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache[source]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
	if err != nil {
		return nil, schema.NewCompileError(source, fmt.Errorf("parse schema: %w", err))
	}
	doc = foldRequired(doc)

	// each source gets its own resource URL and compiler
	url := fmt.Sprintf("themis://schema/%d.json", c.seq)
	c.seq++

	jc := jsonschema.NewCompiler()
	// schema text comes from workflow users, so no reference may leave the document
	jc.UseLoader(jsonschema.SchemeURLLoader{})
	jc.DefaultDraft(c.draft)
	jc.AssertFormat()
	if err := jc.AddResource(url, doc); err != nil {
		return nil, schema.NewCompileError(source, fmt.Errorf("add schema resource: %w", err))
	}
	compiled, err := jc.Compile(url)
	if err != nil {
		return nil, schema.NewCompileError(source, err)
	}

	v := &Validator{schema: compiled, printer: c.printer}
	c.cache[source] = v
	return v, nil
}

// CacheSize returns the number of compiled schemas held by the compiler.
func (c *Compiler) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// foldRequired rewrites {"properties": {"x": {"required": true}}} into
// {"required": ["x"], "properties": {"x": {}}} at every nesting level.
func foldRequired(doc interface{}) interface{} {
	switch node := doc.(type) {
	case map[string]interface{}:
		for k, v := range node {
			node[k] = foldRequired(v)
		}
		props, ok := node["properties"].(map[string]interface{})
		if !ok {
			return node
		}
		var required []string
		for name, p := range props {
			prop, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			flag, ok := prop["required"].(bool)
			if !ok {
				continue
			}
			delete(prop, "required")
			if flag {
				required = append(required, name)
			}
		}
		if len(required) == 0 {
			return node
		}
		sort.Strings(required)
		existing, _ := node["required"].([]interface{})
		seen := make(map[string]bool, len(existing))
		for _, r := range existing {
			if s, ok := r.(string); ok {
				seen[s] = true
			}
		}
		for _, name := range required {
			if !seen[name] {
				existing = append(existing, name)
			}
		}
		node["required"] = existing
		return node
	case []interface{}:
		for i, v := range node {
			node[i] = foldRequired(v)
		}
	}
	return doc
}

// Validator validates values against one compiled schema.
type Validator struct {
	schema  *jsonschema.Schema
	printer *message.Printer
}

var _ schema.Validator = (*Validator)(nil)

// Validate implements schema.Validator. Go values are normalised through JSON
// first so numbers reach the schema as json.Number.
func (v *Validator) Validate(value interface{}) error {
	doc, err := toJSONValue(value)
	if err != nil {
		return schema.NewValidationError(schema.Violation{
			Path:    "/",
			Message: fmt.Sprintf("value is not JSON encodable: %v", err),
			Code:    schema.CodeType,
		})
	}

	if err := v.schema.Validate(doc); err != nil {
		return v.toValidationError(err)
	}
	return nil
}

func (v *Validator) toValidationError(err error) error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewValidationError(schema.Violation{Path: "/", Message: err.Error(), Code: schema.CodeKeyword})
	}
	return schema.NewValidationError(v.collectViolations(verr)...)
}

// collectViolations walks the error tree and keeps the leaves.
func (v *Validator) collectViolations(verr *jsonschema.ValidationError) []schema.Violation {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		code := schema.CodeKeyword
		if path := verr.ErrorKind.KeywordPath(); len(path) > 0 {
			code = path[len(path)-1]
		}
		return []schema.Violation{{
			Path:    loc,
			Message: fmt.Sprintf("%s: %s", loc, verr.ErrorKind.LocalizedString(v.printer)),
			Code:    code,
		}}
	}

	var violations []schema.Violation
	for _, cause := range verr.Causes {
		violations = append(violations, v.collectViolations(cause)...)
	}
	return violations
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number.
func toJSONValue(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}
