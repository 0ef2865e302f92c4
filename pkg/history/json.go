package history

import (
	"encoding/json"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/google/uuid"
)

// MarshalJSON encodes the tree as its persisted layout.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.rec)
}

// UnmarshalJSON decodes and validates a persisted layout.
// Options set on t (clock, id generator, strictness) are preserved.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var rec domain.TreeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.Nodes == nil {
		rec.Nodes = make(map[string]*domain.HistoryNode)
	}
	next := &Tree{rec: rec, clock: t.clock, newID: t.newID, strict: t.strict}
	if err := next.Validate(); err != nil {
		return err
	}
	if next.clock == nil {
		next.clock = time.Now
	}
	if next.newID == nil {
		next.newID = uuid.NewString
	}
	*t = *next
	return nil
}
