package arbor

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/history"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/session"
)

// Engine is the high-level entry point for the arbor library.
// It embeds the session manager, so every document operation (Create,
// Append, Jump, Undo, Redo, Prune, Save...) is available directly.
type Engine struct {
	*session.Manager

	// Name is the base name of the storage directory, when there is one.
	Name string

	store       ports.HistoryStore
	middlewares []middleware.Middleware
	logger      *slog.Logger
	sessionOpts []session.Option
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore injects a custom HistoryStore, bypassing the default file store.
func WithStore(store ports.HistoryStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithMiddleware wraps the store. The first middleware is the outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) {
		e.middlewares = append(e.middlewares, mws...)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithHooks(hooks))
	}
}

// WithMaxNodes sets the node ceiling enforced before every save.
func WithMaxNodes(n int) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithMaxNodes(n))
	}
}

// WithAutosave persists the document after every mutation.
func WithAutosave(enabled bool) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithAutosave(enabled))
	}
}

// WithStrict validates the tree after every mutation.
func WithStrict(strict bool) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithTreeOptions(history.WithStrict(strict)))
	}
}

// WithSessionOptions passes raw options to the underlying session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, opts...)
	}
}

// New initializes an Engine. By default documents are stored as JSON files
// under dir. If WithStore is provided, dir may be empty.
func New(dir string, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.store == nil {
		if dir == "" {
			return nil, fmt.Errorf("dir is required when no custom store is provided")
		}
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.Name = filepath.Base(absPath)
		eng.store = file.New(absPath)
	} else if dir != "" {
		eng.Name = filepath.Base(dir)
	}

	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("store", eng.Name)
	}

	store := middleware.Chain(eng.store, eng.middlewares...)
	sessionOpts := append([]session.Option{session.WithLogger(eng.logger)}, eng.sessionOpts...)
	eng.Manager = session.NewManager(store, sessionOpts...)
	return eng, nil
}
