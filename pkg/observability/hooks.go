package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
)

// LogHooks returns lifecycle hooks that write one structured line per event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAppend: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_append",
				"document_id", e.DocumentID,
				"node_id", e.NodeID,
				"change_kind", e.ChangeKind,
				"label", e.Label,
			)
		},
		OnJump: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_jump", "document_id", e.DocumentID, "node_id", e.NodeID)
		},
		OnUndo: func(ctx context.Context, e *domain.UndoEvent) {
			logger.DebugContext(ctx, "undo",
				"document_id", e.DocumentID,
				"domain", e.Domain,
				"node_id", e.NodeID,
				"label", e.Label,
			)
		},
		OnPrune: func(ctx context.Context, e *domain.PruneEvent) {
			logger.InfoContext(ctx, "history_pruned",
				"document_id", e.DocumentID,
				"removed", e.Removed,
				"remaining", e.Remaining,
			)
		},
		OnSave: func(ctx context.Context, e *domain.SaveEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "save_failed", "document_id", e.DocumentID, "nodes", e.Nodes, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "saved", "document_id", e.DocumentID, "nodes", e.Nodes)
		},
	}
}

// Combine fans every event out to each hook set, in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, s := range sets {
		out.OnAppend = chain(out.OnAppend, s.OnAppend)
		out.OnJump = chain(out.OnJump, s.OnJump)
		out.OnUndo = chain(out.OnUndo, s.OnUndo)
		out.OnPrune = chain(out.OnPrune, s.OnPrune)
		out.OnSave = chain(out.OnSave, s.OnSave)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
