package history

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

// UndoResult is the outcome of a resolved undo.
type UndoResult struct {
	// Document is the snapshot the caller must install as the live document.
	Document domain.Document `json:"document"`
	// Label describes the change that was undone.
	Label string `json:"label"`
	// NodeID is the new current node.
	NodeID string `json:"node_id"`
	// Appended is true when the undo was recorded as a new node (scoped undo)
	// rather than a rewind of the current pointer (full undo).
	Appended bool `json:"appended"`
}

// ResolveUndo reverts the most recent change affecting domain d.
//
// For DomainAll the current pointer moves to the parent node and the
// parent's snapshot is returned. For any other domain, the nearest change
// of that domain is located on the current path, the domain's fields are
// carried back into current from the snapshot preceding that change, and
// the result is appended as a new node. Fields outside the domain keep the
// values they have in current.
//
// ErrNoUndoTarget is returned, with the tree untouched, when there is
// nothing to revert.
func (t *Tree) ResolveUndo(d domain.Domain, current domain.Document) (UndoResult, error) {
	if !d.Valid() {
		return UndoResult{}, fmt.Errorf("unknown undo domain %q", d)
	}
	cur, ok := t.rec.Nodes[t.rec.CurrentNodeID]
	if !ok {
		return UndoResult{}, domain.ErrNoUndoTarget
	}

	if d == domain.DomainAll {
		parent, ok := t.rec.Nodes[cur.ParentID]
		if !ok {
			return UndoResult{}, domain.ErrNoUndoTarget
		}
		t.rec.CurrentNodeID = parent.ID
		return UndoResult{
			Document: cloneDocument(parent.Payload),
			Label:    cur.Label,
			NodeID:   parent.ID,
		}, nil
	}

	target := t.findUndoTarget(d)
	if target == nil {
		return UndoResult{}, domain.ErrNoUndoTarget
	}
	source := t.rec.Nodes[target.ParentID]

	doc := cloneDocument(current)
	d.Carry(&doc, cloneDocument(source.Payload))

	kind, _ := d.UndoKind()
	entry := t.appendNode(doc, kind, fmt.Sprintf("Undo %s: %s", d, target.Label), target.ID)

	return UndoResult{
		Document: doc,
		Label:    target.Label,
		NodeID:   entry.ID,
		Appended: true,
	}, nil
}

// findUndoTarget walks from the current node towards the root and returns
// the first node whose change affects d. A scoped-undo node of the same
// domain redirects the walk above the change it already reverted, so that
// repeated undos keep stepping back instead of toggling.
func (t *Tree) findUndoTarget(d domain.Domain) *domain.HistoryNode {
	undoKind, _ := d.UndoKind()
	id := t.rec.CurrentNodeID
	for steps := 0; id != "" && steps <= len(t.rec.Nodes); steps++ {
		node, ok := t.rec.Nodes[id]
		if !ok || node.ParentID == "" {
			return nil
		}
		if node.ChangeKind == undoKind && node.UndoOf != "" {
			if undone, ok := t.rec.Nodes[node.UndoOf]; ok {
				id = undone.ParentID
				continue
			}
		}
		if d.Matches(node.ChangeKind) {
			if _, ok := t.rec.Nodes[node.ParentID]; ok {
				return node
			}
			return nil
		}
		id = node.ParentID
	}
	return nil
}

// RedoHint lists the forward states reachable from the current node.
type RedoHint struct {
	Children []Entry `json:"children"`
}

// Redo never picks a forward state on its own: it always returns
// ErrRedoRequiresSelection, with the current node's children as candidates
// for an explicit Jump.
func (t *Tree) Redo() (RedoHint, error) {
	hint := RedoHint{Children: []Entry{}}
	if t.rec.CurrentNodeID == "" {
		return hint, domain.ErrRedoRequiresSelection
	}
	children, err := t.Children(t.rec.CurrentNodeID)
	if err != nil {
		return hint, err
	}
	hint.Children = children
	return hint, domain.ErrRedoRequiresSelection
}
