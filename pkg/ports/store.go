package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// HistoryStore defines the interface for persisting documents with their history.
// Implementations must not retain references to the records they are given
// nor hand out references to records they hold.
type HistoryStore interface {
	// Save persists the record for a given document ID.
	// A rejected save must leave the previously persisted record intact.
	Save(ctx context.Context, documentID string, record *domain.DocumentRecord) error

	// Load retrieves the record for a given document ID.
	// Returns domain.ErrDocumentNotFound if the document does not exist.
	Load(ctx context.Context, documentID string) (*domain.DocumentRecord, error)

	// Delete removes the record for a given document ID.
	Delete(ctx context.Context, documentID string) error

	// List returns the IDs of all stored documents.
	List(ctx context.Context) ([]string, error)
}
