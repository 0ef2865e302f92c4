package history

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

// Validate checks the structural invariants of the tree:
// a single root reaching every node, parent links mirrored exactly by
// children lists, and a current node that exists.
// Violations are reported wrapped in domain.ErrCorruptTree.
func (t *Tree) Validate() error {
	nodes := t.rec.Nodes
	if len(nodes) == 0 {
		if t.rec.RootID != "" || t.rec.CurrentNodeID != "" {
			return fmt.Errorf("empty tree with root %q current %q: %w", t.rec.RootID, t.rec.CurrentNodeID, domain.ErrCorruptTree)
		}
		return nil
	}

	root, ok := nodes[t.rec.RootID]
	if !ok {
		return fmt.Errorf("missing root %q: %w", t.rec.RootID, domain.ErrCorruptTree)
	}
	if root.ParentID != "" {
		return fmt.Errorf("root %q has parent %q: %w", root.ID, root.ParentID, domain.ErrCorruptTree)
	}
	if _, ok := nodes[t.rec.CurrentNodeID]; !ok {
		return fmt.Errorf("missing current node %q: %w", t.rec.CurrentNodeID, domain.ErrCorruptTree)
	}

	for id, n := range nodes {
		if n == nil {
			return fmt.Errorf("nil node %q: %w", id, domain.ErrCorruptTree)
		}
		if n.ID != id {
			return fmt.Errorf("node keyed %q has id %q: %w", id, n.ID, domain.ErrCorruptTree)
		}
		if !n.ChangeKind.Valid() {
			return fmt.Errorf("node %q has unknown change kind %q: %w", id, n.ChangeKind, domain.ErrCorruptTree)
		}
		if n.ParentID == "" {
			if id != t.rec.RootID {
				return fmt.Errorf("second root %q: %w", id, domain.ErrCorruptTree)
			}
			continue
		}
		parent, ok := nodes[n.ParentID]
		if !ok {
			return fmt.Errorf("node %q has dangling parent %q: %w", id, n.ParentID, domain.ErrCorruptTree)
		}
		count := 0
		for _, cid := range parent.ChildrenIDs {
			if cid == id {
				count++
			}
		}
		if count != 1 {
			return fmt.Errorf("node %q listed %d times by parent %q: %w", id, count, parent.ID, domain.ErrCorruptTree)
		}
		if n.Timestamp.Before(parent.Timestamp) {
			return fmt.Errorf("node %q is older than its parent: %w", id, domain.ErrCorruptTree)
		}
	}

	for id, n := range nodes {
		for _, cid := range n.ChildrenIDs {
			child, ok := nodes[cid]
			if !ok {
				return fmt.Errorf("node %q lists missing child %q: %w", id, cid, domain.ErrCorruptTree)
			}
			if child.ParentID != id {
				return fmt.Errorf("node %q lists %q whose parent is %q: %w", id, cid, child.ParentID, domain.ErrCorruptTree)
			}
		}
	}

	// Reachability from the root rules out cycles detached from it.
	seen := make(map[string]bool, len(nodes))
	stack := []string{root.ID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			return fmt.Errorf("node %q reached twice: %w", cur, domain.ErrCorruptTree)
		}
		seen[cur] = true
		stack = append(stack, nodes[cur].ChildrenIDs...)
	}
	if len(seen) != len(nodes) {
		return fmt.Errorf("%d of %d nodes unreachable from root: %w", len(nodes)-len(seen), len(nodes), domain.ErrCorruptTree)
	}
	return nil
}
