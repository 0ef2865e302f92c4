package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventAppend EventType = "append"
	EventJump   EventType = "jump"
	EventUndo   EventType = "undo"
	EventPrune  EventType = "prune"
	EventSave   EventType = "save"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id"`
}

// NodeEvent reports a node being created or becoming current.
type NodeEvent struct {
	EventBase
	NodeID     string     `json:"node_id"`
	ChangeKind ChangeKind `json:"change_kind"`
	Label      string     `json:"label"`
}

// UndoEvent reports a resolved undo.
type UndoEvent struct {
	EventBase
	Domain Domain `json:"domain"`
	// NodeID is the new current node (the rewind target or the synthetic node).
	NodeID string `json:"node_id"`
	Label  string `json:"label"`
}

// PruneEvent reports a pruning pass that removed at least one node.
type PruneEvent struct {
	EventBase
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// SaveEvent reports a persistence attempt.
type SaveEvent struct {
	EventBase
	Nodes int   `json:"nodes"`
	Err   error `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnAppend func(context.Context, *NodeEvent)
	OnJump   func(context.Context, *NodeEvent)
	OnUndo   func(context.Context, *UndoEvent)
	OnPrune  func(context.Context, *PruneEvent)
	OnSave   func(context.Context, *SaveEvent)
}
