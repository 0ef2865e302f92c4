package history

// PruneResult summarizes a pruning pass.
type PruneResult struct {
	Removed      int  `json:"removed"`
	Remaining    int  `json:"remaining"`
	WithinBudget bool `json:"within_budget"`
}

// Prune brings the tree towards maxNodes without touching the current node
// or its ancestors.
//
// When the root is a branch point, the oldest branch off the current path
// is deleted, repeatedly, until the budget is met or only the live branch
// is left. Otherwise, when the root has a single child and is not itself
// current, the child is promoted to root: one node per call. The live path
// is never cut further; if that is not enough the tree stays over budget.
func (t *Tree) Prune(maxNodes int) PruneResult {
	res := PruneResult{}
	if t.Empty() || t.Len() <= maxNodes {
		res.Remaining = t.Len()
		res.WithinBudget = true
		return res
	}

	root := t.rec.Nodes[t.rec.RootID]
	if len(root.ChildrenIDs) >= 2 {
		for t.Len() > maxNodes {
			n, ok := t.dropOldestBranch()
			if !ok {
				break
			}
			res.Removed += n
		}
	} else if n, ok := t.promoteRootChild(); ok {
		res.Removed += n
	}

	res.Remaining = t.Len()
	res.WithinBudget = res.Remaining <= maxNodes
	t.check("prune")
	return res
}

// PruneStep performs exactly one pruning step, regardless of any budget.
// It returns the number of nodes removed and false when no step is possible.
func (t *Tree) PruneStep() (int, bool) {
	if t.Empty() {
		return 0, false
	}
	root := t.rec.Nodes[t.rec.RootID]
	var (
		n  int
		ok bool
	)
	switch {
	case len(root.ChildrenIDs) >= 2:
		n, ok = t.dropOldestBranch()
	case len(root.ChildrenIDs) == 1:
		n, ok = t.promoteRootChild()
	}
	t.check("prune step")
	return n, ok
}

// dropOldestBranch deletes the subtree of the first root child that is not
// on the current path. Only applies while the root is a branch point.
func (t *Tree) dropOldestBranch() (int, bool) {
	root := t.rec.Nodes[t.rec.RootID]
	if len(root.ChildrenIDs) < 2 {
		return 0, false
	}
	for i, cid := range root.ChildrenIDs {
		if t.onCurrentPath(cid) {
			continue
		}
		removed := t.deleteSubtree(cid)
		root.ChildrenIDs = append(root.ChildrenIDs[:i:i], root.ChildrenIDs[i+1:]...)
		return removed, true
	}
	return 0, false
}

// promoteRootChild discards a single-child root and makes the child the root.
func (t *Tree) promoteRootChild() (int, bool) {
	root := t.rec.Nodes[t.rec.RootID]
	if len(root.ChildrenIDs) != 1 || root.ID == t.rec.CurrentNodeID {
		return 0, false
	}
	child, ok := t.rec.Nodes[root.ChildrenIDs[0]]
	if !ok {
		return 0, false
	}
	child.ParentID = ""
	delete(t.rec.Nodes, root.ID)
	t.rec.RootID = child.ID
	return 1, true
}

func (t *Tree) deleteSubtree(id string) int {
	removed := 0
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node, ok := t.rec.Nodes[cur]
		if !ok {
			continue
		}
		stack = append(stack, node.ChildrenIDs...)
		delete(t.rec.Nodes, cur)
		removed++
	}
	return removed
}
