package domain

import "time"

// HistoryNode is one snapshot in the branching history.
type HistoryNode struct {
	ID string `json:"id"`

	// ParentID is empty for the root.
	ParentID string `json:"parent_id,omitempty"`

	// ChildrenIDs are kept in creation order; more than one child marks a branch point.
	ChildrenIDs []string `json:"children_ids"`

	// Timestamp never decreases along a root-to-node path.
	Timestamp time.Time `json:"timestamp"`

	ChangeKind ChangeKind `json:"change_kind"`
	Label      string     `json:"label"`

	// Payload is the full document as of after this change.
	Payload Document `json:"payload"`

	// UndoOf names the node whose change a scoped undo reverted.
	// Only set on synthetic undo nodes.
	UndoOf string `json:"undo_of,omitempty"`
}

// IsRoot reports whether the node has no parent.
func (n *HistoryNode) IsRoot() bool {
	return n.ParentID == ""
}

// IsBranchPoint reports whether alternate futures diverge from this node.
func (n *HistoryNode) IsBranchPoint() bool {
	return len(n.ChildrenIDs) > 1
}
