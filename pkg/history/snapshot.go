package history

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/mohae/deepcopy"
)

// Snapshot returns a copy of the document stored at node id.
// Every append stores a full copy; identical snapshots are not deduplicated.
func (t *Tree) Snapshot(id string) (domain.Document, error) {
	node, ok := t.rec.Nodes[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("snapshot %q: %w", id, domain.ErrNodeNotFound)
	}
	return cloneDocument(node.Payload), nil
}

// Current returns a copy of the current node's snapshot.
// ok is false on an empty tree.
func (t *Tree) Current() (doc domain.Document, ok bool) {
	node, ok := t.rec.Nodes[t.rec.CurrentNodeID]
	if !ok {
		return domain.Document{}, false
	}
	return cloneDocument(node.Payload), true
}

// cloneDocument isolates stored snapshots from the caller's copy.
// Stored payloads are never mutated after storage.
func cloneDocument(doc domain.Document) domain.Document {
	return doc.Clone()
}

func cloneNode(n *domain.HistoryNode) *domain.HistoryNode {
	return deepcopy.Copy(n).(*domain.HistoryNode)
}

func cloneRecord(rec domain.TreeRecord) domain.TreeRecord {
	out := domain.TreeRecord{
		Nodes:         make(map[string]*domain.HistoryNode, len(rec.Nodes)),
		CurrentNodeID: rec.CurrentNodeID,
		RootID:        rec.RootID,
	}
	for id, n := range rec.Nodes {
		if n == nil {
			out.Nodes[id] = nil
			continue
		}
		out.Nodes[id] = cloneNode(n)
	}
	return out
}
