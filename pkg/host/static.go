// Package host provides an in-memory node.Host built from a fixed batch of
// items and node parameters.
package host

import (
	"fmt"

	"github.com/wehubfusion/Themis/pkg/node"
)

// Config describes the node instance a StaticHost runs.
type Config struct {
	// NodeName is the name of the node instance in the workflow
	NodeName string
	// NodeType is the plugin type of the node
	NodeType string
	// ContinueOnFail tags failing items instead of halting the run
	ContinueOnFail bool
	// Parameters are the node parameters shared by every item
	Parameters map[string]interface{}
	// ItemParameters optionally overrides Parameters per item index.
	// A nil entry falls back to Parameters.
	ItemParameters []map[string]interface{}
}

// StaticHost implements node.Host over an in-memory batch.
type StaticHost struct {
	items []node.Item
	cfg   Config
}

var _ node.Host = (*StaticHost)(nil)

// New creates a host for items.
func New(items []node.Item, cfg Config) *StaticHost {
	return &StaticHost{items: items, cfg: cfg}
}

// Items returns the input batch.
func (h *StaticHost) Items() []node.Item {
	return h.items
}

// RuleConfig parses the rules configured for the item at itemIndex.
func (h *StaticHost) RuleConfig(itemIndex int) ([]node.Rule, error) {
	if itemIndex < 0 || itemIndex >= len(h.items) {
		return nil, fmt.Errorf("item index %d out of range [0, %d)", itemIndex, len(h.items))
	}
	params := h.cfg.Parameters
	if itemIndex < len(h.cfg.ItemParameters) && h.cfg.ItemParameters[itemIndex] != nil {
		params = h.cfg.ItemParameters[itemIndex]
	}
	return node.ParseRules(params)
}

// ContinueOnFail reports the configured failure mode.
func (h *StaticHost) ContinueOnFail() bool {
	return h.cfg.ContinueOnFail
}

// ScopedError binds cause to this node and the failing item.
func (h *StaticHost) ScopedError(cause error, itemIndex int) error {
	return node.ScopeError(h.cfg.NodeName, h.cfg.NodeType, cause, itemIndex)
}

// NodeName returns the configured node name.
func (h *StaticHost) NodeName() string {
	return h.cfg.NodeName
}

// NodeType returns the configured plugin type.
func (h *StaticHost) NodeType() string {
	return h.cfg.NodeType
}
