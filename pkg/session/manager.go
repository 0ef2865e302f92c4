package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/history"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/google/uuid"
)

// DefaultMaxNodes is the node ceiling enforced before every save.
const DefaultMaxNodes = 500

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// openDocument is the in-memory state of a document.
// It is only touched while holding the document's lock.
type openDocument struct {
	title     string
	tree      *history.Tree
	live      domain.Document
	updatedAt time.Time
}

// Info summarizes an open document.
type Info struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Nodes         int       `json:"nodes"`
	RootID        string    `json:"root_id"`
	CurrentNodeID string    `json:"current_node_id"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Manager orchestrates document access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.HistoryStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	docsMu sync.Mutex
	docs   map[string]*openDocument

	locker   ports.DistributedLocker // Optional distributed locker
	lockTTL  time.Duration
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	maxNodes int
	autosave bool
	treeOpts []history.Option
	now      func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithMaxNodes sets the node ceiling applied before every save.
// Zero or less disables pruning on save.
func WithMaxNodes(n int) Option {
	return func(m *Manager) {
		m.maxNodes = n
	}
}

// WithAutosave persists the document after every successful mutation.
// Autosave failures are logged and reported to OnSave; they do not fail
// the mutation.
func WithAutosave(enabled bool) Option {
	return func(m *Manager) {
		m.autosave = enabled
	}
}

// WithTreeOptions configures the trees created or loaded by the Manager.
func WithTreeOptions(opts ...history.Option) Option {
	return func(m *Manager) {
		m.treeOpts = append(m.treeOpts, opts...)
	}
}

// WithClock overrides the clock used for UpdatedAt and events.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new Manager with the given persistence store.
func NewManager(store ports.HistoryStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		locks:    make(map[string]*lockEntry),
		docs:     make(map[string]*openDocument),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(), // Default to no-op
		maxNodes: DefaultMaxNodes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(documentID) after unlocking.
func (m *Manager) acquire(documentID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[documentID]
	if !exists {
		entry = &lockEntry{}
		m.locks[documentID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[documentID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, documentID)
	}
}

// WithLock executes a function while holding the lock for the document.
func (m *Manager) WithLock(ctx context.Context, documentID string, fn func(context.Context) error) error {
	entry := m.acquire(documentID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(documentID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, documentID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock",
					"document_id", documentID,
					"err", err,
				)
			}
		}()
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (m *Manager) cached(documentID string) (*openDocument, bool) {
	m.docsMu.Lock()
	defer m.docsMu.Unlock()
	doc, ok := m.docs[documentID]
	return doc, ok
}

func (m *Manager) cache(documentID string, doc *openDocument) {
	m.docsMu.Lock()
	defer m.docsMu.Unlock()
	m.docs[documentID] = doc
}

func (m *Manager) evict(documentID string) {
	m.docsMu.Lock()
	defer m.docsMu.Unlock()
	delete(m.docs, documentID)
}

// load returns the open document, reading it from the store on first use.
// The caller must hold the document's lock.
func (m *Manager) load(ctx context.Context, documentID string) (*openDocument, error) {
	if doc, ok := m.cached(documentID); ok {
		return doc, nil
	}

	rec, err := m.store.Load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(rec.Sealed) > 0 {
		return nil, fmt.Errorf("document %q is encrypted and no key is configured", documentID)
	}

	tree, err := history.FromRecord(rec.History, m.treeOpts...)
	if err != nil {
		m.logger.Error("Refusing to open corrupt document", "document_id", documentID, "err", err)
		return nil, err
	}

	live, ok := rec.LiveDocument()
	if !ok {
		live, _ = tree.Current()
	}

	doc := &openDocument{
		title:     rec.Title,
		tree:      tree,
		live:      live,
		updatedAt: rec.UpdatedAt,
	}
	m.cache(documentID, doc)
	return doc, nil
}

func (m *Manager) info(documentID string, doc *openDocument) Info {
	return Info{
		ID:            documentID,
		Title:         doc.title,
		Nodes:         doc.tree.Len(),
		RootID:        doc.tree.RootID(),
		CurrentNodeID: doc.tree.CurrentID(),
		UpdatedAt:     doc.updatedAt,
	}
}

func (m *Manager) base(documentID string, typ domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: m.now(), Type: typ, DocumentID: documentID}
}

// Create starts a new document whose history root holds initial.
// An empty documentID gets a generated one. The document is persisted
// immediately to reserve the ID.
func (m *Manager) Create(ctx context.Context, documentID, title string, initial domain.Document) (Info, error) {
	if documentID == "" {
		documentID = uuid.NewString()
	}
	var info Info
	err := m.WithLock(ctx, documentID, func(ctx context.Context) error {
		if _, ok := m.cached(documentID); ok {
			return fmt.Errorf("create %q: %w", documentID, domain.ErrDocumentExists)
		}
		_, err := m.store.Load(ctx, documentID)
		if err == nil {
			return fmt.Errorf("create %q: %w", documentID, domain.ErrDocumentExists)
		}
		if !errors.Is(err, domain.ErrDocumentNotFound) {
			return fmt.Errorf("failed to check document existence: %w", err)
		}

		tree := history.NewWithRoot(initial, "Create document", m.treeOpts...)
		live, _ := tree.Current()
		doc := &openDocument{title: title, tree: tree, live: live, updatedAt: m.now()}

		if err := m.persist(ctx, documentID, doc); err != nil {
			return fmt.Errorf("failed to initialize document: %w", err)
		}
		m.cache(documentID, doc)

		if m.hooks.OnAppend != nil {
			root, _ := tree.Entry(tree.RootID())
			m.hooks.OnAppend(ctx, &domain.NodeEvent{
				EventBase:  m.base(documentID, domain.EventAppend),
				NodeID:     root.ID,
				ChangeKind: root.ChangeKind,
				Label:      root.Label,
			})
		}
		info = m.info(documentID, doc)
		return nil
	})
	return info, err
}

// Open loads a document (if needed) and returns its summary.
func (m *Manager) Open(ctx context.Context, documentID string) (Info, error) {
	var info Info
	err := m.WithLock(ctx, documentID, func(ctx context.Context) error {
		doc, err := m.load(ctx, documentID)
		if err != nil {
			return err
		}
		info = m.info(documentID, doc)
		return nil
	})
	return info, err
}

// Append records doc as the result of a change of the given kind and
// installs it as the live document.
func (m *Manager) Append(ctx context.Context, documentID string, doc domain.Document, kind domain.ChangeKind, label string) (history.Entry, error) {
	if !kind.Valid() || kind.IsScopedUndo() {
		return history.Entry{}, fmt.Errorf("cannot append change of kind %q", kind)
	}
	var entry history.Entry
	err := m.WithLock(ctx, documentID, func(ctx context.Context) error {
		od, err := m.load(ctx, documentID)
		if err != nil {
			return err
		}
		entry = m.appendLocked(ctx, documentID, od, doc, kind, label)
		return nil
	})
	return entry, err
}

func (m *Manager) appendLocked(ctx context.Context, documentID string, od *openDocument, doc domain.Document, kind domain.ChangeKind, label string) history.Entry {
	entry := od.tree.Append(doc, kind, label)
	od.live, _ = od.tree.Current()
	od.updatedAt = m.now()

	if m.hooks.OnAppend != nil {
		m.hooks.OnAppend(ctx, &domain.NodeEvent{
			EventBase:  m.base(documentID, domain.EventAppend),
			NodeID:     entry.ID,
			ChangeKind: entry.ChangeKind,
			Label:      entry.Label,
		})
	}
	m.maybeAutosave(ctx, documentID, od)
	return entry
}

// Apply edits a copy of the live document with fn and records the result as
// one node of the given kind, atomically with respect to other callers.
// An error from fn aborts without recording anything.
func (m *Manager) Apply(ctx context.Context, documentID string, kind domain.ChangeKind, label string, fn func(*domain.Document) error) (history.Entry, error) {
	if !kind.Valid() || kind.IsScopedUndo() {
		return history.Entry{}, fmt.Errorf("cannot append change of kind %q", kind)
	}
	var entry history.Entry
	err := m.WithLock(ctx, documentID, func(ctx context.Context) error {
		od, err := m.load(ctx, documentID)
		if err != nil {
			return err
		}
		doc := od.live.Clone()
		if err := fn(&doc); err != nil {
			return err
		}
		entry = m.appendLocked(ctx, documentID, od, doc, kind, label)
		return nil
	})
	return entry, err
}

// Edit replaces the live document without recording a history node, as
// uncommitted typing does. Scoped undos resolve against this document.
func (m *Manager) Edit(ctx context.Context, documentID string, doc domain.Document) error {
	return m.WithLock(ctx, documentID, func(ctx context.Context) error {
		od, err := m.load(ctx, documentID)
		if err != nil {
			return err
		}
		od.live = doc.Clone()
		od.updatedAt = m.now()
		return nil
	})
}

// Jump moves the document to nodeID and returns the snapshot now live.
func (m *Manager) Jump(ctx context.Context, documentID, nodeID string) (domain.Document, error) {
	var live domain.Document
	err := m.WithLock(ctx, documentID, func(ctx context.Context) error {
		od, err := m.load(ctx, documentID)
		if err != nil {
			return err
		}
		doc, err := od.tree.Jump(nodeID)
		if err != nil {
			return err
		}
		od.live = doc
		od.updatedAt = m.now()
		live, _ = od.tree.Current()

		if m.hooks.OnJump != nil {
			entry, _ := od.tree.Entry(nodeID)
			m.hooks.OnJump(ctx, &domain.NodeEvent{
				EventBase:  m.base(documentID, domain.EventJump),
				NodeID:     entry.ID,
				ChangeKind: entry.ChangeKind,
				Label:      entry.Label,
			})
		}
		m.maybeAutosave(ctx, documentID, od)
		return nil
	})
	return live, err
}

// Undo reverts the latest change in domain d against the live document.
func (m *Manager) Undo(ctx context.Context, documentID string, d domain.Domain) (history.UndoResult, error) {
	var res history.UndoResult
	err := m.WithLock(ctx, documentID, func(ctx context.Context) error {
		od, err := m.load(ctx, documentID)
		if err != nil {
			return err
		}
		res, err = od.tree.ResolveUndo(d, od.live)
		if err != nil {
			return err
		}
		od.live = res.Document.Clone()
		od.updatedAt = m.now()

		if m.hooks.OnUndo != nil {
			m.hooks.OnUndo(ctx, &domain.UndoEvent{
				EventBase: m.base(documentID, domain.EventUndo),
				Domain:    d,
				NodeID:    res.NodeID,
				Label:     res.Label,
			})
		}
		m.maybeAutosave(ctx, documentID, od)
		return nil
	})
	return res, err
}

// Redo lists the forward candidates of the current node. It always fails
// with domain.ErrRedoRequiresSelection (or a load error); the hint is
// valid in the former case.
func (m *Manager) Redo(ctx context.Context, documentID string) (history.RedoHint, error) {
	var hint history.RedoHint
	err := m.WithLock(ctx, documentID, func(ctx context.Context) error {
		od, err := m.load(ctx, documentID)
		if err != nil {
			return err
		}
		hint, err = od.tree.Redo()
		return err
	})
	return hint, err
}

// Prune trims the document's history to maxNodes, repeating promotions
// until it fits or only the live path remains. Zero or less uses the
// Manager's ceiling.
func (m *Manager) Prune(ctx context.Context, documentID string, maxNodes int) (history.PruneResult, error) {
	var res history.PruneResult
	err := m.WithLock(ctx, documentID, func(ctx context.Context) error {
		od, err := m.load(ctx, documentID)
		if err != nil {
			return err
		}
		if maxNodes <= 0 {
			maxNodes = m.maxNodes
		}
		res = m.prune(ctx, documentID, od, maxNodes)
		m.maybeAutosave(ctx, documentID, od)
		return nil
	})
	return res, err
}

func (m *Manager) prune(ctx context.Context, documentID string, od *openDocument, maxNodes int) history.PruneResult {
	if maxNodes <= 0 {
		return history.PruneResult{Remaining: od.tree.Len(), WithinBudget: true}
	}
	// Promotion advances one node per pass, so repeat until the tree fits
	// or nothing more can go without cutting the live path.
	var res history.PruneResult
	for {
		step := od.tree.Prune(maxNodes)
		res.Removed += step.Removed
		res.Remaining = step.Remaining
		res.WithinBudget = step.WithinBudget
		if step.WithinBudget || step.Removed == 0 {
			break
		}
	}
	if res.Removed > 0 && m.hooks.OnPrune != nil {
		m.hooks.OnPrune(ctx, &domain.PruneEvent{
			EventBase: m.base(documentID, domain.EventPrune),
			Removed:   res.Removed,
			Remaining: res.Remaining,
		})
	}
	if !res.WithinBudget {
		m.logger.Debug("History still over budget after pruning",
			"document_id", documentID,
			"nodes", res.Remaining,
			"max_nodes", maxNodes,
		)
	}
	return res
}

// Save prunes the document to the node ceiling and persists it.
// A rejected save (e.g. domain.ErrStorageQuotaExceeded) keeps the previously
// persisted record and the live document. Nodes pruned before the write
// stay pruned in memory.
func (m *Manager) Save(ctx context.Context, documentID string) error {
	return m.WithLock(ctx, documentID, func(ctx context.Context) error {
		od, err := m.load(ctx, documentID)
		if err != nil {
			return err
		}
		m.prune(ctx, documentID, od, m.maxNodes)
		return m.persist(ctx, documentID, od)
	})
}

// SaveAll saves every open document and returns the joined errors.
func (m *Manager) SaveAll(ctx context.Context) error {
	m.docsMu.Lock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	m.docsMu.Unlock()
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := m.Save(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) maybeAutosave(ctx context.Context, documentID string, od *openDocument) {
	if !m.autosave {
		return
	}
	m.prune(ctx, documentID, od, m.maxNodes)
	if err := m.persist(ctx, documentID, od); err != nil {
		m.logger.Warn("Autosave failed", "document_id", documentID, "err", err)
	}
}

// persist writes the document, stripping the live copy when it equals the
// current snapshot.
func (m *Manager) persist(ctx context.Context, documentID string, od *openDocument) error {
	rec := m.record(documentID, od)
	err := m.store.Save(ctx, documentID, rec)

	if m.hooks.OnSave != nil {
		m.hooks.OnSave(ctx, &domain.SaveEvent{
			EventBase: m.base(documentID, domain.EventSave),
			Nodes:     len(rec.History.Nodes),
			Err:       err,
		})
	}
	if errors.Is(err, domain.ErrStorageQuotaExceeded) {
		m.logger.Warn("Save rejected: storage quota exceeded",
			"document_id", documentID,
			"nodes", len(rec.History.Nodes),
			"err", err,
		)
	}
	return err
}

func (m *Manager) record(documentID string, od *openDocument) *domain.DocumentRecord {
	rec := &domain.DocumentRecord{
		ID:        documentID,
		Title:     od.title,
		UpdatedAt: od.updatedAt,
		History:   od.tree.Record(),
	}
	if cur, ok := od.tree.Current(); ok && reflect.DeepEqual(cur, od.live) {
		rec.LiveFromHistory = true
	} else {
		live := od.live
		rec.Live = &live
	}
	return rec
}

// Close forgets the in-memory state of a document without saving it.
func (m *Manager) Close(ctx context.Context, documentID string) error {
	return m.WithLock(ctx, documentID, func(ctx context.Context) error {
		m.evict(documentID)
		return nil
	})
}

// Delete removes the document from memory and from the store.
func (m *Manager) Delete(ctx context.Context, documentID string) error {
	return m.WithLock(ctx, documentID, func(ctx context.Context) error {
		m.evict(documentID)
		return m.store.Delete(ctx, documentID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Live returns a copy of the document the user currently sees.
func (m *Manager) Live(ctx context.Context, documentID string) (domain.Document, error) {
	var live domain.Document
	err := m.Tree(ctx, documentID, func(_ *history.Tree, doc domain.Document) error {
		live = doc
		return nil
	})
	return live, err
}

// Entries returns the document's history in depth-first creation order.
func (m *Manager) Entries(ctx context.Context, documentID string) ([]history.Entry, error) {
	var entries []history.Entry
	err := m.Tree(ctx, documentID, func(t *history.Tree, _ domain.Document) error {
		entries = t.Entries()
		return nil
	})
	return entries, err
}

// Tree runs fn with the document's tree and a copy of its live document
// while holding the document's lock. fn must not retain the tree.
func (m *Manager) Tree(ctx context.Context, documentID string, fn func(*history.Tree, domain.Document) error) error {
	return m.WithLock(ctx, documentID, func(ctx context.Context) error {
		od, err := m.load(ctx, documentID)
		if err != nil {
			return err
		}
		return fn(od.tree, od.live.Clone())
	})
}

// Store returns the underlying history store.
func (m *Manager) Store() ports.HistoryStore {
	return m.store
}
