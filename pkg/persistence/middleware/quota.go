package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

type quotaMiddleware struct {
	next  ports.HistoryStore
	limit int
}

// NewQuotaMiddleware rejects saves whose serialized record exceeds limitBytes.
// A rejected save never reaches the wrapped store, so the previously persisted
// record stays intact. A limit <= 0 disables the check.
func NewQuotaMiddleware(limitBytes int) Middleware {
	return func(next ports.HistoryStore) ports.HistoryStore {
		return &quotaMiddleware{next: next, limit: limitBytes}
	}
}

func (m *quotaMiddleware) Save(ctx context.Context, documentID string, record *domain.DocumentRecord) error {
	if m.limit > 0 {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		if len(data) > m.limit {
			return fmt.Errorf("%w: %d bytes exceeds limit of %d", domain.ErrStorageQuotaExceeded, len(data), m.limit)
		}
	}
	return m.next.Save(ctx, documentID, record)
}

func (m *quotaMiddleware) Load(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	return m.next.Load(ctx, documentID)
}

func (m *quotaMiddleware) Delete(ctx context.Context, documentID string) error {
	return m.next.Delete(ctx, documentID)
}

func (m *quotaMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
