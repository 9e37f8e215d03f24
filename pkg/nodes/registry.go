// Package nodes registers the validation node plugins by plugin type.
package nodes

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wehubfusion/Themis/pkg/node"
	"github.com/wehubfusion/Themis/pkg/nodes/yupdatavalidator"
	"github.com/wehubfusion/Themis/pkg/nodes/yupvalidation"
	"github.com/wehubfusion/Themis/pkg/schema/jsonschema"
	"github.com/wehubfusion/Themis/pkg/schema/yup"
	"github.com/wehubfusion/Themis/pkg/validate"
)

// Registry is a thread-safe map of node creators keyed by plugin type.
type Registry struct {
	creators map[string]node.Creator
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		creators: make(map[string]node.Creator),
	}
}

// NewDefaultRegistry creates a registry holding both validation nodes.
// Nodes of one type share a compiler, so compiled schemas are reused across jobs.
func NewDefaultRegistry(opts validate.Options) (*Registry, error) {
	schemas, err := jsonschema.NewCompiler()
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON Schema compiler: %w", err)
	}
	expressions := yup.NewCompiler()

	r := NewRegistry()
	r.Register(yupdatavalidator.Type, func() node.Node {
		return yupdatavalidator.New(schemas, opts)
	})
	r.Register(yupvalidation.Type, func() node.Node {
		return yupvalidation.New(expressions, opts)
	})
	return r, nil
}

// Register registers a node creator for a plugin type.
// An existing creator for the type is overwritten.
func (r *Registry) Register(pluginType string, creator node.Creator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creators[pluginType] = creator
}

// Create creates a node for the plugin type.
// Returns node.ErrUnknownNodeType if no creator is registered.
func (r *Registry) Create(pluginType string) (node.Node, error) {
	r.mu.RLock()
	creator, exists := r.creators[pluginType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", node.ErrUnknownNodeType, pluginType)
	}
	return creator(), nil
}

// Has checks if a creator exists for a plugin type.
func (r *Registry) Has(pluginType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.creators[pluginType]
	return exists
}

// Types returns all registered plugin types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.creators))
	for t := range r.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Descriptions returns the description of every registered node, ordered by type.
func (r *Registry) Descriptions() []node.Description {
	types := r.Types()
	out := make([]node.Description, 0, len(types))
	for _, t := range types {
		n, err := r.Create(t)
		if err != nil {
			continue
		}
		out = append(out, n.Description())
	}
	return out
}
