package yup

import (
	"sync"

	"github.com/wehubfusion/Themis/pkg/schema"
)

// Compiler compiles yup expressions and caches the schemas by source text.
// It is safe for concurrent use.
type Compiler struct {
	mu    sync.RWMutex
	cache map[string]*Schema
}

var _ schema.Compiler = (*Compiler)(nil)

// NewCompiler creates an empty compiler.
func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[string]*Schema)}
}

// Compile implements schema.Compiler. Expressions that do not parse, or use
// anything beyond the schema builders, yield a *schema.CompileError wrapping
// an *ExpressionError.
func (c *Compiler) Compile(source string) (schema.Validator, error) {
	c.mu.RLock()
	if cached, ok := c.cache[source]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	s, err := Parse(source)
	if err != nil {
		return nil, schema.NewCompileError(source, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.cache[source]; ok {
		return cached, nil
	}
	c.cache[source] = s
	return s, nil
}

// CacheSize returns the number of compiled schemas held by the compiler.
func (c *Compiler) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
