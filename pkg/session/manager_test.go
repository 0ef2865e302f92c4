package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/history"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() history.Option {
	seq := 0
	return history.WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("n%d", seq)
	})
}

func newManager(t *testing.T, store ports.HistoryStore, opts ...session.Option) *session.Manager {
	t.Helper()
	opts = append([]session.Option{session.WithTreeOptions(sequentialIDs(), history.WithStrict(true))}, opts...)
	return session.NewManager(store, opts...)
}

func TestManager_ScopedUndoScenario(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.NewStore())

	_, err := mgr.Create(ctx, "novel", "Novel", domain.Document{})
	require.NoError(t, err)

	_, err = mgr.Append(ctx, "novel", domain.Document{Text: "A"}, domain.ChangeEditor, "Edit text")
	require.NoError(t, err)

	withChar := domain.Document{Text: "A", Characters: []domain.Entity{{ID: "c1", Name: "X"}}}
	_, err = mgr.Append(ctx, "novel", withChar, domain.ChangeCharacter, "Add character X")
	require.NoError(t, err)

	res, err := mgr.Undo(ctx, "novel", domain.DomainText)
	require.NoError(t, err)
	assert.True(t, res.Appended)
	assert.Equal(t, "", res.Document.Text)
	assert.Len(t, res.Document.Characters, 1)

	live, err := mgr.Live(ctx, "novel")
	require.NoError(t, err)
	assert.Equal(t, res.Document, live)

	entries, err := mgr.Entries(ctx, "novel")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, domain.ChangeUndoText, entries[3].ChangeKind)
	assert.Equal(t, "n2", entries[3].UndoOf)
}

func TestManager_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mgr := newManager(t, store)

	_, err := mgr.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)

	_, err = mgr.Create(ctx, "doc", "", domain.Document{})
	assert.ErrorIs(t, err, domain.ErrDocumentExists)

	// A second manager sees the persisted document too.
	other := newManager(t, store)
	_, err = other.Create(ctx, "doc", "", domain.Document{})
	assert.ErrorIs(t, err, domain.ErrDocumentExists)
}

func TestManager_CreateGeneratesID(t *testing.T) {
	mgr := newManager(t, memory.NewStore())
	info, err := mgr.Create(context.Background(), "", "Untitled", domain.Document{})
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 1, info.Nodes)
	assert.Equal(t, info.RootID, info.CurrentNodeID)
}

func TestManager_OpenUnknown(t *testing.T) {
	mgr := newManager(t, memory.NewStore())
	_, err := mgr.Open(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestManager_JumpAndRedo(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.NewStore())
	_, err := mgr.Create(ctx, "doc", "", domain.Document{Text: "root"})
	require.NoError(t, err)
	_, err = mgr.Append(ctx, "doc", domain.Document{Text: "a"}, domain.ChangeEditor, "a")
	require.NoError(t, err)

	doc, err := mgr.Jump(ctx, "doc", "n1")
	require.NoError(t, err)
	assert.Equal(t, "root", doc.Text)

	hint, err := mgr.Redo(ctx, "doc")
	assert.ErrorIs(t, err, domain.ErrRedoRequiresSelection)
	require.Len(t, hint.Children, 1)
	assert.Equal(t, "n2", hint.Children[0].ID)

	_, err = mgr.Jump(ctx, "doc", "missing")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	live, err := mgr.Live(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "root", live.Text, "failed jump must not change the live document")
}

func TestManager_AppendRejectsSyntheticKinds(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.NewStore())
	_, err := mgr.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)

	_, err = mgr.Append(ctx, "doc", domain.Document{}, domain.ChangeUndoText, "fake")
	assert.Error(t, err)
	_, err = mgr.Append(ctx, "doc", domain.Document{}, domain.ChangeKind("bogus"), "fake")
	assert.Error(t, err)
}

func TestManager_CancelledContextCreatesNoNode(t *testing.T) {
	mgr := newManager(t, memory.NewStore())
	_, err := mgr.Create(context.Background(), "doc", "", domain.Document{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mgr.Append(ctx, "doc", domain.Document{Text: "late"}, domain.ChangeEditor, "late")
	assert.ErrorIs(t, err, context.Canceled)

	info, err := mgr.Open(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Nodes)
}

func TestManager_SaveAndReload(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mgr := newManager(t, store)

	_, err := mgr.Create(ctx, "doc", "Title", domain.Document{})
	require.NoError(t, err)
	_, err = mgr.Append(ctx, "doc", domain.Document{Text: "saved"}, domain.ChangeEditor, "write")
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, "doc"))

	rec, err := store.Load(ctx, "doc")
	require.NoError(t, err)
	assert.True(t, rec.LiveFromHistory)
	assert.Nil(t, rec.Live, "live copy equal to current snapshot is stripped")

	// Uncommitted edits are persisted separately from history.
	require.NoError(t, mgr.Edit(ctx, "doc", domain.Document{Text: "typing..."}))
	require.NoError(t, mgr.Save(ctx, "doc"))
	rec, err = store.Load(ctx, "doc")
	require.NoError(t, err)
	assert.False(t, rec.LiveFromHistory)
	require.NotNil(t, rec.Live)
	assert.Equal(t, "typing...", rec.Live.Text)

	reloaded := newManager(t, store)
	live, err := reloaded.Live(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "typing...", live.Text)

	info, err := reloaded.Open(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "Title", info.Title)
	assert.Equal(t, 2, info.Nodes)
}

func TestManager_SavePrunesToCeiling(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mgr := newManager(t, store, session.WithMaxNodes(3))

	_, err := mgr.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)
	// Two abandoned branches off the root, then the live one.
	for _, text := range []string{"a", "b", "c"} {
		_, err = mgr.Jump(ctx, "doc", "n1")
		require.NoError(t, err)
		_, err = mgr.Append(ctx, "doc", domain.Document{Text: text}, domain.ChangeEditor, text)
		require.NoError(t, err)
	}
	require.NoError(t, mgr.Save(ctx, "doc"))

	rec, err := store.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, rec.History.Nodes, 3)
	assert.NotContains(t, rec.History.Nodes, "n2", "oldest abandoned branch goes first")
	assert.Contains(t, rec.History.Nodes, "n4")
}

func TestManager_SavePrunesLinearHistoryToCeiling(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	var pruned []*domain.PruneEvent
	mgr := newManager(t, store, session.WithMaxNodes(3), session.WithHooks(domain.LifecycleHooks{
		OnPrune: func(_ context.Context, e *domain.PruneEvent) { pruned = append(pruned, e) },
	}))

	_, err := mgr.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)
	for i := range 9 {
		_, err = mgr.Append(ctx, "doc", domain.Document{Text: strings.Repeat("a", i+1)}, domain.ChangeEditor, "typed")
		require.NoError(t, err)
	}
	require.NoError(t, mgr.Save(ctx, "doc"))

	rec, err := store.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, rec.History.Nodes, 3)
	assert.Equal(t, "n8", rec.History.RootID)
	assert.Equal(t, "n10", rec.History.CurrentNodeID)

	require.Len(t, pruned, 1, "one event per pruning pass")
	assert.Equal(t, 7, pruned[0].Removed)
	assert.Equal(t, 3, pruned[0].Remaining)
}

func TestManager_PruneKeepsLivePath(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.NewStore())

	_, err := mgr.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)
	for _, text := range []string{"a", "b", "c"} {
		_, err = mgr.Append(ctx, "doc", domain.Document{Text: text}, domain.ChangeEditor, text)
		require.NoError(t, err)
	}
	_, err = mgr.Jump(ctx, "doc", "n2")
	require.NoError(t, err)

	res, err := mgr.Prune(ctx, "doc", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.False(t, res.WithinBudget)

	live, err := mgr.Live(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "a", live.Text)
}

func TestManager_QuotaRejectionKeepsState(t *testing.T) {
	ctx := context.Background()
	base := memory.NewStore()
	store := middleware.NewQuotaMiddleware(2048)(base)

	var saveErrs []error
	mgr := newManager(t, store, session.WithHooks(domain.LifecycleHooks{
		OnSave: func(_ context.Context, e *domain.SaveEvent) { saveErrs = append(saveErrs, e.Err) },
	}))

	_, err := mgr.Create(ctx, "doc", "", domain.Document{Text: "small"})
	require.NoError(t, err)

	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'x'
	}
	_, err = mgr.Append(ctx, "doc", domain.Document{Text: string(big)}, domain.ChangeEditor, "big")
	require.NoError(t, err)

	err = mgr.Save(ctx, "doc")
	assert.ErrorIs(t, err, domain.ErrStorageQuotaExceeded)

	info, err := mgr.Open(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Nodes, "in-memory history is untouched")

	rec, err := base.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, rec.History.Nodes, 1, "persisted record is the previous one")

	require.Len(t, saveErrs, 2)
	assert.NoError(t, saveErrs[0])
	assert.ErrorIs(t, saveErrs[1], domain.ErrStorageQuotaExceeded)
}

func TestManager_AutosaveFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	store := middleware.NewQuotaMiddleware(2048)(memory.NewStore())
	mgr := newManager(t, store, session.WithAutosave(true))

	_, err := mgr.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)

	big := make([]byte, 4096)
	_, err = mgr.Append(ctx, "doc", domain.Document{Text: string(big)}, domain.ChangeEditor, "big")
	assert.NoError(t, err)
}

func TestManager_Hooks(t *testing.T) {
	ctx := context.Background()
	var (
		mu     sync.Mutex
		events []domain.EventType
	)
	record := func(typ domain.EventType) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, typ)
	}
	hooks := domain.LifecycleHooks{
		OnAppend: func(_ context.Context, e *domain.NodeEvent) { record(e.Type) },
		OnJump:   func(_ context.Context, e *domain.NodeEvent) { record(e.Type) },
		OnUndo:   func(_ context.Context, e *domain.UndoEvent) { record(e.Type) },
		OnPrune:  func(_ context.Context, e *domain.PruneEvent) { record(e.Type) },
		OnSave:   func(_ context.Context, e *domain.SaveEvent) { record(e.Type) },
	}
	mgr := newManager(t, memory.NewStore(), session.WithHooks(hooks))

	_, err := mgr.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)
	_, err = mgr.Append(ctx, "doc", domain.Document{Text: "a"}, domain.ChangeEditor, "a")
	require.NoError(t, err)
	_, err = mgr.Undo(ctx, "doc", domain.DomainAll)
	require.NoError(t, err)
	_, err = mgr.Append(ctx, "doc", domain.Document{Text: "b"}, domain.ChangeEditor, "b")
	require.NoError(t, err)
	_, err = mgr.Jump(ctx, "doc", "n3")
	require.NoError(t, err)
	res, err := mgr.Prune(ctx, "doc", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)

	assert.Equal(t, []domain.EventType{
		domain.EventSave, domain.EventAppend, // create
		domain.EventAppend,
		domain.EventUndo,
		domain.EventAppend,
		domain.EventJump,
		domain.EventPrune,
	}, events)
}

func TestManager_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	mgr := session.NewManager(memory.NewStore())
	_, err := mgr.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			_, err := mgr.Append(ctx, "doc", domain.Document{Text: fmt.Sprint(val)}, domain.ChangeEditor, "write")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := mgr.Entries(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, entries, writers+1)
	// Serialized appends form a single chain.
	for i, e := range entries {
		assert.Equal(t, i, e.Depth)
	}
}

func TestManager_DeleteAndClose(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mgr := newManager(t, store)

	_, err := mgr.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)
	_, err = mgr.Append(ctx, "doc", domain.Document{Text: "unsaved"}, domain.ChangeEditor, "w")
	require.NoError(t, err)

	// Close drops unsaved changes.
	require.NoError(t, mgr.Close(ctx, "doc"))
	info, err := mgr.Open(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Nodes)

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc"}, ids)

	require.NoError(t, mgr.Delete(ctx, "doc"))
	_, err = mgr.Open(ctx, "doc")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked int
	fail     error
}

func (l *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	l.mu.Lock()
	l.locked = append(l.locked, key)
	l.mu.Unlock()
	return func(context.Context) error {
		l.mu.Lock()
		l.unlocked++
		l.mu.Unlock()
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	ctx := context.Background()
	locker := &fakeLocker{}
	mgr := newManager(t, memory.NewStore(), session.WithLocker(locker))

	_, err := mgr.Create(ctx, "doc", "", domain.Document{})
	require.NoError(t, err)
	_, err = mgr.Append(ctx, "doc", domain.Document{Text: "a"}, domain.ChangeEditor, "a")
	require.NoError(t, err)

	assert.Equal(t, []string{"doc", "doc"}, locker.locked)
	assert.Equal(t, 2, locker.unlocked)

	locker.fail = errors.New("busy")
	_, err = mgr.Append(ctx, "doc", domain.Document{Text: "b"}, domain.ChangeEditor, "b")
	assert.ErrorContains(t, err, "distributed lock")
}

func TestManager_Apply(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.NewStore())
	_, err := mgr.Create(ctx, "doc", "", domain.Document{Text: "draft"})
	require.NoError(t, err)

	entry, err := mgr.Apply(ctx, "doc", domain.ChangeAssistant, "Assistant reply", func(d *domain.Document) error {
		d.Dialogue = append(d.Dialogue, domain.Message{Role: "assistant", Content: "Try a shorter opening."})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeAssistant, entry.ChangeKind)

	live, err := mgr.Live(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "draft", live.Text)
	require.Len(t, live.Dialogue, 1)

	_, err = mgr.Apply(ctx, "doc", domain.ChangeAssistant, "fails", func(d *domain.Document) error {
		d.Text = "garbage"
		return errors.New("assistant unavailable")
	})
	assert.ErrorContains(t, err, "assistant unavailable")

	info, err := mgr.Open(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Nodes)
	live, err = mgr.Live(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "draft", live.Text)
}

func TestManager_SaveAll(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mgr := newManager(t, store)

	for _, id := range []string{"a", "b"} {
		_, err := mgr.Create(ctx, id, "", domain.Document{})
		require.NoError(t, err)
		_, err = mgr.Append(ctx, id, domain.Document{Text: id}, domain.ChangeEditor, "Edit text")
		require.NoError(t, err)
	}
	require.NoError(t, mgr.SaveAll(ctx))

	for _, id := range []string{"a", "b"} {
		rec, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Len(t, rec.History.Nodes, 2)
	}
}
