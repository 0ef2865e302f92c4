package history

import (
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/google/uuid"
)

// Tree is a branching history of document snapshots.
// The zero value is not usable; create trees with New, NewWithRoot or FromRecord.
type Tree struct {
	rec domain.TreeRecord

	clock  func() time.Time
	newID  func() string
	strict bool
}

// Option configures a Tree.
type Option func(*Tree)

// WithClock overrides the time source used to stamp new nodes.
func WithClock(clock func() time.Time) Option {
	return func(t *Tree) {
		t.clock = clock
	}
}

// WithIDGenerator overrides node id generation (default: random UUIDs).
func WithIDGenerator(gen func() string) Option {
	return func(t *Tree) {
		t.newID = gen
	}
}

// WithStrict makes every mutation verify the tree invariants and panic on
// violation. Meant for development and tests.
func WithStrict(strict bool) Option {
	return func(t *Tree) {
		t.strict = strict
	}
}

// New creates an empty tree.
func New(opts ...Option) *Tree {
	t := &Tree{
		rec:   domain.TreeRecord{Nodes: make(map[string]*domain.HistoryNode)},
		clock: time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewWithRoot creates a tree whose single root node holds doc.
func NewWithRoot(doc domain.Document, label string, opts ...Option) *Tree {
	t := New(opts...)
	t.Append(doc, domain.ChangeCreate, label)
	return t
}

// FromRecord rebuilds a tree from its persisted layout.
// The record is copied and validated; a broken record yields ErrCorruptTree.
func FromRecord(rec domain.TreeRecord, opts ...Option) (*Tree, error) {
	t := New(opts...)
	t.rec = cloneRecord(rec)
	if t.rec.Nodes == nil {
		t.rec.Nodes = make(map[string]*domain.HistoryNode)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Record returns a deep copy of the persisted layout.
func (t *Tree) Record() domain.TreeRecord {
	return cloneRecord(t.rec)
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.rec.Nodes)
}

// Empty reports whether the tree has no root.
func (t *Tree) Empty() bool {
	return t.rec.RootID == ""
}

// CurrentID returns the id of the node the user currently sees.
func (t *Tree) CurrentID() string {
	return t.rec.CurrentNodeID
}

// RootID returns the id of the tree's root.
func (t *Tree) RootID() string {
	return t.rec.RootID
}

// Append records doc as a new child of the current node and makes it current.
// On an empty tree the new node becomes both root and current.
func (t *Tree) Append(doc domain.Document, kind domain.ChangeKind, label string) Entry {
	return t.appendNode(doc, kind, label, "")
}

func (t *Tree) appendNode(doc domain.Document, kind domain.ChangeKind, label, undoOf string) Entry {
	parent := t.rec.Nodes[t.rec.CurrentNodeID]

	ts := t.clock()
	if parent != nil && ts.Before(parent.Timestamp) {
		ts = parent.Timestamp
	}

	node := &domain.HistoryNode{
		ID:          t.nextID(),
		ChildrenIDs: []string{},
		Timestamp:   ts,
		ChangeKind:  kind,
		Label:       label,
		Payload:     cloneDocument(doc),
		UndoOf:      undoOf,
	}

	if parent != nil {
		node.ParentID = parent.ID
		parent.ChildrenIDs = append(parent.ChildrenIDs, node.ID)
	} else {
		t.rec.RootID = node.ID
	}

	t.rec.Nodes[node.ID] = node
	t.rec.CurrentNodeID = node.ID
	t.check("append")

	return t.entry(node, 0)
}

// nextID asks the generator for a fresh id, falling back to a UUID when it
// keeps producing empty or taken ones.
func (t *Tree) nextID() string {
	for range len(t.rec.Nodes) + 1 {
		id := t.newID()
		if _, taken := t.rec.Nodes[id]; !taken && id != "" {
			return id
		}
	}
	for {
		id := uuid.NewString()
		if _, taken := t.rec.Nodes[id]; !taken {
			return id
		}
	}
}

// Jump makes id the current node and returns its snapshot for the caller
// to install as the live document. The tree shape is not altered.
func (t *Tree) Jump(id string) (domain.Document, error) {
	node, ok := t.rec.Nodes[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("jump to %q: %w", id, domain.ErrNodeNotFound)
	}
	t.rec.CurrentNodeID = id
	return cloneDocument(node.Payload), nil
}

// Path returns the ids from the root down to id, inclusive.
func (t *Tree) Path(id string) ([]string, error) {
	if _, ok := t.rec.Nodes[id]; !ok {
		return nil, fmt.Errorf("path to %q: %w", id, domain.ErrNodeNotFound)
	}
	var rev []string
	for cur := id; cur != ""; {
		node, ok := t.rec.Nodes[cur]
		if !ok {
			return nil, fmt.Errorf("path to %q: dangling parent %q: %w", id, cur, domain.ErrCorruptTree)
		}
		rev = append(rev, cur)
		if len(rev) > len(t.rec.Nodes) {
			return nil, fmt.Errorf("path to %q: cycle detected: %w", id, domain.ErrCorruptTree)
		}
		cur = node.ParentID
	}
	path := make([]string, len(rev))
	for i, v := range rev {
		path[len(rev)-1-i] = v
	}
	return path, nil
}

// IsAncestor reports whether a is b or one of b's ancestors.
func (t *Tree) IsAncestor(a, b string) bool {
	steps := 0
	for cur := b; cur != ""; {
		if cur == a {
			return true
		}
		node, ok := t.rec.Nodes[cur]
		if !ok || steps > len(t.rec.Nodes) {
			return false
		}
		cur = node.ParentID
		steps++
	}
	return false
}

// onCurrentPath reports whether id is the current node or one of its ancestors.
func (t *Tree) onCurrentPath(id string) bool {
	if t.rec.CurrentNodeID == "" {
		return false
	}
	return t.IsAncestor(id, t.rec.CurrentNodeID)
}

func (t *Tree) check(op string) {
	if !t.strict {
		return
	}
	if err := t.Validate(); err != nil {
		panic(fmt.Sprintf("history: invariant violated after %s: %v", op, err))
	}
}
