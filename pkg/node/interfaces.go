package node

import "context"

// Host is the workflow runtime a node is loaded into.
// It hands the node its input batch and per-item configuration, and owns the
// construction of node-scoped errors.
type Host interface {
	// Items returns the ordered input batch.
	Items() []Item

	// RuleConfig returns the validation rules configured for the item at itemIndex.
	// The list may be empty.
	RuleConfig(itemIndex int) ([]Rule, error)

	// ContinueOnFail reports whether failing items should be tagged and passed on
	// instead of halting the run.
	ContinueOnFail() bool

	// ScopedError wraps cause into an error bound to this node and the failing item.
	ScopedError(cause error, itemIndex int) error
}

// Node is a validation node plugin.
type Node interface {
	// Description returns the declarative metadata the host renders as a form.
	Description() Description

	// Execute validates the host's items and returns the output batch.
	// A non-nil error halts the run.
	Execute(ctx context.Context, host Host) ([]Item, error)
}

// Creator builds a fresh node instance.
type Creator func() Node
