package node

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNodeType is returned when no node is registered for a plugin type.
	ErrUnknownNodeType = errors.New("no node registered for plugin type")

	// ErrInvalidParameters is returned when the node parameters do not have the expected shape.
	ErrInvalidParameters = errors.New("invalid node parameters")
)

// ItemContext is implemented by errors that already carry an item position.
// Such errors are re-scoped to the failing item instead of being wrapped again.
type ItemContext interface {
	error
	SetItemIndex(itemIndex int)
}

// NodeOperationError is the structured error that halts a run.
// It identifies the node and the index of the item that failed.
type NodeOperationError struct {
	// NodeName is the name of the node instance in the workflow
	NodeName string
	// NodeType is the plugin type of the node
	NodeType string
	// ItemIndex is the index of the failing item
	ItemIndex int
	// Cause is the underlying failure
	Cause error
}

// Error implements the error interface.
func (e *NodeOperationError) Error() string {
	return fmt.Sprintf("node %s [%s] failed at item %d: %v", e.NodeName, e.NodeType, e.ItemIndex, e.Cause)
}

// Unwrap returns the underlying error.
func (e *NodeOperationError) Unwrap() error {
	return e.Cause
}

// SetItemIndex re-scopes the error to another item.
func (e *NodeOperationError) SetItemIndex(itemIndex int) {
	e.ItemIndex = itemIndex
}

// NewNodeOperationError creates a new node operation error.
func NewNodeOperationError(nodeName, nodeType string, itemIndex int, cause error) *NodeOperationError {
	return &NodeOperationError{
		NodeName:  nodeName,
		NodeType:  nodeType,
		ItemIndex: itemIndex,
		Cause:     cause,
	}
}

// ScopeError binds cause to a node and item. A cause that already carries item
// context gets its index updated and is returned as is.
func ScopeError(nodeName, nodeType string, cause error, itemIndex int) error {
	var ic ItemContext
	if errors.As(cause, &ic) {
		ic.SetItemIndex(itemIndex)
		return cause
	}
	return NewNodeOperationError(nodeName, nodeType, itemIndex, cause)
}

// ItemIndexOf extracts the failing item index from a scoped error.
// Returns -1 when err carries no item context.
func ItemIndexOf(err error) int {
	var opErr *NodeOperationError
	if errors.As(err, &opErr) {
		return opErr.ItemIndex
	}
	return -1
}
