/*
Package domain contains the core models of the arbor history engine.

It defines the document snapshot, the history node and the persisted tree
layout, together with the closed set of change kinds and undo domains.
This package is kept pure and free of external dependencies like I/O or
persistence, following Hexagonal Architecture principles.

# Key Entities

  - Document: a full copy of the project state at one point in time.
  - HistoryNode: one snapshot in the branching history, with parent/children links.
  - TreeRecord: the plain, serializable layout of a history tree.
  - DocumentRecord: what a store persists for one document (live state + history).
  - ChangeKind / Domain: which fields a change touched and which fields an undo may touch.
*/
package domain
