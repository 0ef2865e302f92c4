package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunHistoryStoreContract runs a suite of tests to verify that a HistoryStore
// implementation adheres to the defined interface contract.
func RunHistoryStoreContract(t *testing.T, store HistoryStore) {
	ctx := context.Background()
	documentID := "contract-test-doc-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		record := sampleRecord(documentID)

		err := store.Save(ctx, documentID, record)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, documentID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, record.ID, loaded.ID)
		assert.Equal(t, record.Title, loaded.Title)
		assert.Equal(t, record.History.RootID, loaded.History.RootID)
		assert.Equal(t, record.History.CurrentNodeID, loaded.History.CurrentNodeID)
		require.Len(t, loaded.History.Nodes, 2)
		assert.Equal(t, "Chapter 1", loaded.History.Nodes["n2"].Payload.Text)
		assert.Equal(t, []string{"n2"}, loaded.History.Nodes["n1"].ChildrenIDs)
		assert.Equal(t, domain.ChangeEditor, loaded.History.Nodes["n2"].ChangeKind)
		assert.True(t, loaded.LiveFromHistory)

		live, ok := loaded.LiveDocument()
		require.True(t, ok)
		assert.Equal(t, "Chapter 1", live.Text)
	})

	t.Run("Isolation", func(t *testing.T) {
		record := sampleRecord(documentID)
		require.NoError(t, store.Save(ctx, documentID, record))

		// Mutating the saved record afterwards must not leak into the store.
		record.History.Nodes["n2"].Payload.Text = "tampered"

		loaded, err := store.Load(ctx, documentID)
		require.NoError(t, err)
		assert.Equal(t, "Chapter 1", loaded.History.Nodes["n2"].Payload.Text)
	})

	t.Run("Overwrite", func(t *testing.T) {
		record := sampleRecord(documentID)
		record.Title = "Renamed"
		require.NoError(t, store.Save(ctx, documentID, record))

		loaded, err := store.Load(ctx, documentID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", loaded.Title)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+documentID)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, documentID, sampleRecord(documentID))
		require.NoError(t, err)

		err = store.Delete(ctx, documentID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, documentID)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound, "Load after Delete should return ErrDocumentNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := documentID + "-1"
		id2 := documentID + "-2"
		_ = store.Save(ctx, id1, sampleRecord(id1))
		_ = store.Save(ctx, id2, sampleRecord(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

func sampleRecord(id string) *domain.DocumentRecord {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &domain.DocumentRecord{
		ID:              id,
		Title:           "Contract",
		UpdatedAt:       ts,
		LiveFromHistory: true,
		History: domain.TreeRecord{
			RootID:        "n1",
			CurrentNodeID: "n2",
			Nodes: map[string]*domain.HistoryNode{
				"n1": {
					ID:          "n1",
					ChildrenIDs: []string{"n2"},
					Timestamp:   ts,
					ChangeKind:  domain.ChangeCreate,
					Label:       "create",
				},
				"n2": {
					ID:          "n2",
					ParentID:    "n1",
					ChildrenIDs: []string{},
					Timestamp:   ts.Add(time.Minute),
					ChangeKind:  domain.ChangeEditor,
					Label:       "write",
					Payload: domain.Document{
						Text:       "Chapter 1",
						Characters: []domain.Entity{{ID: "c1", Name: "Ada", Attributes: map[string]string{"role": "lead"}}},
					},
				},
			},
		},
	}
}
