package domain

import "time"

// TreeRecord is the plain persisted layout of a history tree.
// Both ids are empty only when the tree is empty.
type TreeRecord struct {
	Nodes         map[string]*HistoryNode `json:"nodes"`
	CurrentNodeID string                  `json:"current_node_id,omitempty"`
	RootID        string                  `json:"root_id,omitempty"`
}

// DocumentRecord is what a store persists for one document.
type DocumentRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	// Live is the document the user currently sees.
	// It is omitted when LiveFromHistory is set, because the current
	// history node already holds an identical copy.
	Live            *Document `json:"live,omitempty"`
	LiveFromHistory bool      `json:"live_from_history,omitempty"`

	History TreeRecord `json:"history"`

	// Sealed holds an encrypted DocumentRecord. When set, every other field
	// except ID and UpdatedAt is left empty.
	Sealed []byte `json:"sealed,omitempty"`
}

// LiveDocument returns the live document, restoring it from the current
// history node when it was stripped before serialization.
func (r *DocumentRecord) LiveDocument() (Document, bool) {
	if r.Live != nil {
		return *r.Live, true
	}
	if !r.LiveFromHistory {
		return Document{}, false
	}
	node, ok := r.History.Nodes[r.History.CurrentNodeID]
	if !ok {
		return Document{}, false
	}
	return node.Payload, true
}
