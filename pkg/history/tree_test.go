package history

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_EmptyTreeCreatesRoot(t *testing.T) {
	tree := New(testOpts()...)
	require.True(t, tree.Empty())

	e := tree.Append(domain.Document{Text: "hello"}, domain.ChangeCreate, "create")

	assert.Equal(t, "n1", e.ID)
	assert.Equal(t, "n1", tree.RootID())
	assert.Equal(t, "n1", tree.CurrentID())
	assert.Empty(t, e.ParentID)
	assert.True(t, e.Current)
	assert.Equal(t, 1, tree.Len())
}

func TestAppend_AdvancesCurrent(t *testing.T) {
	tree := NewWithRoot(domain.Document{}, "create", testOpts()...)
	doc := domain.Document{Text: "A", Characters: []domain.Entity{{ID: "c1", Name: "Bob"}}}

	e := tree.Append(doc, domain.ChangeEditor, "edit1")

	assert.Equal(t, e.ID, tree.CurrentID())
	assert.Equal(t, "n1", e.ParentID)
	got, err := tree.Snapshot(e.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	root, err := tree.Entry("n1")
	require.NoError(t, err)
	assert.Equal(t, []string{e.ID}, root.ChildrenIDs)
}

func TestAppend_SnapshotIsolation(t *testing.T) {
	tree := NewWithRoot(domain.Document{}, "create", testOpts()...)
	doc := domain.Document{Characters: []domain.Entity{{ID: "c1", Name: "Bob"}}}
	e := tree.Append(doc, domain.ChangeCharacter, "addChar")

	// Mutating the caller's copy must not reach the stored snapshot.
	doc.Characters[0].Name = "Mallory"

	got, err := tree.Snapshot(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Characters[0].Name)

	// Nor may mutating a returned copy.
	got.Characters[0].Name = "Eve"
	again, _ := tree.Snapshot(e.ID)
	assert.Equal(t, "Bob", again.Characters[0].Name)
}

func TestAppend_TimestampsNeverDecrease(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Hour), base.Add(time.Minute)}
	i := 0
	tree := New(WithClock(func() time.Time {
		ts := times[i]
		i++
		return ts
	}), WithStrict(true))

	tree.Append(domain.Document{}, domain.ChangeCreate, "create")
	second := tree.Append(domain.Document{Text: "a"}, domain.ChangeEditor, "clock went back")
	third := tree.Append(domain.Document{Text: "b"}, domain.ChangeEditor, "clock ok")

	assert.Equal(t, base, second.Timestamp)
	assert.Equal(t, base.Add(time.Minute), third.Timestamp)
}

func TestTreeIntegrity_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tree := NewWithRoot(domain.Document{}, "create", testOpts()...)
	kinds := []domain.ChangeKind{domain.ChangeEditor, domain.ChangeCharacter, domain.ChangeAssistant, domain.ChangePlot}

	for i := 0; i < 300; i++ {
		switch rng.Intn(4) {
		case 0:
			ids := tree.Entries()
			_, err := tree.Jump(ids[rng.Intn(len(ids))].ID)
			require.NoError(t, err)
		default:
			tree.Append(domain.Document{Text: string(rune('a' + i%26))}, kinds[rng.Intn(len(kinds))], "edit")
		}
	}

	require.NoError(t, tree.Validate())
	rec := tree.Record()
	for id, n := range rec.Nodes {
		if n.ParentID == "" {
			assert.Equal(t, rec.RootID, id)
			continue
		}
		parent, ok := rec.Nodes[n.ParentID]
		require.True(t, ok, "parent of %s exists", id)
		count := 0
		for _, cid := range parent.ChildrenIDs {
			if cid == id {
				count++
			}
		}
		assert.Equal(t, 1, count, "child %s listed once", id)
	}
}

func TestJump(t *testing.T) {
	tree := NewWithRoot(domain.Document{Text: "root"}, "create", testOpts()...)
	a := tree.Append(domain.Document{Text: "A"}, domain.ChangeEditor, "a")
	tree.Append(domain.Document{Text: "B"}, domain.ChangeEditor, "b")

	t.Run("NotFound", func(t *testing.T) {
		before := tree.CurrentID()
		_, err := tree.Jump("missing")
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
		assert.Equal(t, before, tree.CurrentID())
	})

	t.Run("Idempotent", func(t *testing.T) {
		first, err := tree.Jump(a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, tree.CurrentID())

		second, err := tree.Jump(a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, tree.CurrentID())
		assert.Equal(t, first, second)
		assert.Equal(t, "A", second.Text)
	})

	t.Run("ShapeUnchanged", func(t *testing.T) {
		before := tree.Record()
		_, err := tree.Jump(tree.RootID())
		require.NoError(t, err)
		after := tree.Record()
		assert.Equal(t, len(before.Nodes), len(after.Nodes))
		for id, n := range before.Nodes {
			assert.Equal(t, n.ChildrenIDs, after.Nodes[id].ChildrenIDs)
		}
	})
}

func TestAppend_AfterJumpCreatesBranch(t *testing.T) {
	tree := NewWithRoot(domain.Document{}, "create", testOpts()...)
	a := tree.Append(domain.Document{Text: "A"}, domain.ChangeEditor, "a")
	_, err := tree.Jump(tree.RootID())
	require.NoError(t, err)
	b := tree.Append(domain.Document{Text: "B"}, domain.ChangeEditor, "b")

	root, err := tree.Entry(tree.RootID())
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, root.ChildrenIDs)

	children, err := tree.Children(tree.RootID())
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.False(t, children[0].OnCurrentPath)
	assert.True(t, children[1].Current)
}

func TestAppend_StuckIDGeneratorFallsBack(t *testing.T) {
	for name, gen := range map[string]func() string{
		"empty":    func() string { return "" },
		"constant": func() string { return "same" },
	} {
		t.Run(name, func(t *testing.T) {
			tree := New(WithIDGenerator(gen), WithStrict(true))
			first := tree.Append(domain.Document{Text: "A"}, domain.ChangeEditor, "a")
			second := tree.Append(domain.Document{Text: "B"}, domain.ChangeEditor, "b")

			assert.NotEmpty(t, first.ID)
			assert.NotEmpty(t, second.ID)
			assert.NotEqual(t, first.ID, second.ID)
			assert.Equal(t, 2, tree.Len())
		})
	}
}

func TestPathAndAncestors(t *testing.T) {
	tree := NewWithRoot(domain.Document{}, "create", testOpts()...)
	a := tree.Append(domain.Document{Text: "A"}, domain.ChangeEditor, "a")
	b := tree.Append(domain.Document{Text: "B"}, domain.ChangeEditor, "b")

	path, err := tree.Path(b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", a.ID, b.ID}, path)

	assert.True(t, tree.IsAncestor("n1", b.ID))
	assert.True(t, tree.IsAncestor(b.ID, b.ID))
	assert.False(t, tree.IsAncestor(b.ID, a.ID))

	_, err = tree.Path("nope")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	e, err := tree.Entry(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Depth)
}

func TestEntries_DepthFirstCreationOrder(t *testing.T) {
	tree := NewWithRoot(domain.Document{}, "create", testOpts()...)
	tree.Append(domain.Document{Text: "A"}, domain.ChangeEditor, "a")  // n2
	tree.Append(domain.Document{Text: "AA"}, domain.ChangeEditor, "aa") // n3
	_, _ = tree.Jump("n1")
	tree.Append(domain.Document{Text: "B"}, domain.ChangeEditor, "b") // n4

	var ids []string
	for _, e := range tree.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"n1", "n2", "n3", "n4"}, ids)
}

func TestFromRecord(t *testing.T) {
	tree := NewWithRoot(domain.Document{Text: "root"}, "create", testOpts()...)
	tree.Append(domain.Document{Text: "A"}, domain.ChangeEditor, "a")

	t.Run("RoundTrip", func(t *testing.T) {
		loaded, err := FromRecord(tree.Record())
		require.NoError(t, err)
		assert.Equal(t, tree.CurrentID(), loaded.CurrentID())
		assert.Equal(t, tree.Len(), loaded.Len())
	})

	t.Run("DanglingParent", func(t *testing.T) {
		rec := tree.Record()
		rec.Nodes["n2"].ParentID = "ghost"
		_, err := FromRecord(rec)
		assert.ErrorIs(t, err, domain.ErrCorruptTree)
	})

	t.Run("DuplicateChild", func(t *testing.T) {
		rec := tree.Record()
		rec.Nodes["n1"].ChildrenIDs = []string{"n2", "n2"}
		_, err := FromRecord(rec)
		assert.ErrorIs(t, err, domain.ErrCorruptTree)
	})

	t.Run("MissingCurrent", func(t *testing.T) {
		rec := tree.Record()
		rec.CurrentNodeID = "ghost"
		_, err := FromRecord(rec)
		assert.ErrorIs(t, err, domain.ErrCorruptTree)
	})

	t.Run("Empty", func(t *testing.T) {
		loaded, err := FromRecord(domain.TreeRecord{})
		require.NoError(t, err)
		assert.True(t, loaded.Empty())
	})
}

func TestJSON(t *testing.T) {
	tree := NewWithRoot(domain.Document{Text: "root"}, "create", testOpts()...)
	tree.Append(domain.Document{Text: "A", Settings: map[string]string{"font": "serif"}}, domain.ChangeEditor, "a")

	data, err := json.Marshal(tree)
	require.NoError(t, err)

	loaded := New()
	require.NoError(t, json.Unmarshal(data, loaded))
	assert.Equal(t, tree.CurrentID(), loaded.CurrentID())

	doc, ok := loaded.Current()
	require.True(t, ok)
	assert.Equal(t, "serif", doc.Settings["font"])

	bad := New()
	err = json.Unmarshal([]byte(`{"nodes":{},"root_id":"x","current_node_id":"x"}`), bad)
	assert.ErrorIs(t, err, domain.ErrCorruptTree)
}

func TestStrictPanicsOnCorruption(t *testing.T) {
	tree := NewWithRoot(domain.Document{}, "create", testOpts()...)
	tree.rec.Nodes["n1"].ChildrenIDs = []string{"ghost"}
	assert.Panics(t, func() {
		tree.Append(domain.Document{}, domain.ChangeEditor, "boom")
	})
}
