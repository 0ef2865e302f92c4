package middleware_test

import (
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

func newRecord(id string) *domain.DocumentRecord {
	ts := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	live := domain.Document{
		Text:     "draft",
		Settings: map[string]string{"api_token": "tok-123", "theme": "dark"},
		Characters: []domain.Entity{
			{ID: "c1", Name: "Ada", Attributes: map[string]string{"ssn": "999-99-9999", "role": "lead"}},
		},
	}
	return &domain.DocumentRecord{
		ID:        id,
		Title:     "Secret Novel",
		UpdatedAt: ts,
		Live:      &live,
		History: domain.TreeRecord{
			RootID:        "n1",
			CurrentNodeID: "n1",
			Nodes: map[string]*domain.HistoryNode{
				"n1": {
					ID:          "n1",
					ChildrenIDs: []string{},
					Timestamp:   ts,
					ChangeKind:  domain.ChangeCreate,
					Label:       "create",
					Payload:     live,
				},
			},
		},
	}
}
