package domain

import (
	"time"

	"github.com/mohae/deepcopy"
)

// Entity is one structured record of the project data (a character, a place,
// a plot beat...). The collection it lives in gives it its meaning.
type Entity struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Body       string            `json:"body,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Message is one turn of the assistant dialogue.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Document is a complete snapshot of the project state.
// History nodes store it verbatim, never as a diff.
type Document struct {
	// Text is the document body edited in the editor surface.
	Text string `json:"text"`

	// Structured project data.
	Characters []Entity `json:"characters,omitempty"`
	World      []Entity `json:"world,omitempty"`
	Knowledge  []Entity `json:"knowledge,omitempty"`
	Plot       []Entity `json:"plot,omitempty"`
	Timeline   []Entity `json:"timeline,omitempty"`
	Charts     []Entity `json:"charts,omitempty"`
	Outline    []Entity `json:"outline,omitempty"`

	// Dialogue holds the assistant conversation attached to the document.
	Dialogue []Message `json:"dialogue,omitempty"`

	// Settings are generic per-document preferences.
	Settings map[string]string `json:"settings,omitempty"`
}

// Clone returns a deep copy of d sharing no maps or slices with it.
func (d Document) Clone() Document {
	return deepcopy.Copy(d).(Document)
}
