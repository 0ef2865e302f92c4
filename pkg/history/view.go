package history

import (
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// Entry is a payload-free view of a node, for history panels and listings.
type Entry struct {
	ID            string            `json:"id"`
	ParentID      string            `json:"parent_id,omitempty"`
	ChildrenIDs   []string          `json:"children_ids"`
	Timestamp     time.Time         `json:"timestamp"`
	ChangeKind    domain.ChangeKind `json:"change_kind"`
	Label         string            `json:"label"`
	UndoOf        string            `json:"undo_of,omitempty"`
	Depth         int               `json:"depth"`
	Current       bool              `json:"current"`
	OnCurrentPath bool              `json:"on_current_path"`
}

func (t *Tree) entry(n *domain.HistoryNode, depth int) Entry {
	children := make([]string, len(n.ChildrenIDs))
	copy(children, n.ChildrenIDs)
	return Entry{
		ID:            n.ID,
		ParentID:      n.ParentID,
		ChildrenIDs:   children,
		Timestamp:     n.Timestamp,
		ChangeKind:    n.ChangeKind,
		Label:         n.Label,
		UndoOf:        n.UndoOf,
		Depth:         depth,
		Current:       n.ID == t.rec.CurrentNodeID,
		OnCurrentPath: t.onCurrentPath(n.ID),
	}
}

// Entry returns the view of a single node. Depth is its distance from the root.
func (t *Tree) Entry(id string) (Entry, error) {
	node, ok := t.rec.Nodes[id]
	if !ok {
		return Entry{}, fmt.Errorf("entry %q: %w", id, domain.ErrNodeNotFound)
	}
	path, err := t.Path(id)
	if err != nil {
		return Entry{}, err
	}
	return t.entry(node, len(path)-1), nil
}

// Children returns the direct children of id in creation order.
func (t *Tree) Children(id string) ([]Entry, error) {
	parent, err := t.Entry(id)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(parent.ChildrenIDs))
	for _, cid := range parent.ChildrenIDs {
		if child, ok := t.rec.Nodes[cid]; ok {
			out = append(out, t.entry(child, parent.Depth+1))
		}
	}
	return out, nil
}

// Entries lists every node depth-first from the root, children in creation order.
func (t *Tree) Entries() []Entry {
	out := make([]Entry, 0, len(t.rec.Nodes))
	t.Walk(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Walk visits nodes depth-first from the root. Returning false from fn
// skips the visited node's subtree.
func (t *Tree) Walk(fn func(Entry) bool) {
	if t.Empty() {
		return
	}
	visited := make(map[string]bool, len(t.rec.Nodes))
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		node, ok := t.rec.Nodes[id]
		if !ok || visited[id] {
			return
		}
		visited[id] = true
		if !fn(t.entry(node, depth)) {
			return
		}
		for _, cid := range node.ChildrenIDs {
			visit(cid, depth+1)
		}
	}
	visit(t.rec.RootID, 0)
}
