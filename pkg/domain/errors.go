package domain

import "errors"

// ErrNodeNotFound is returned when a history node id is absent from the tree.
var ErrNodeNotFound = errors.New("history node not found")

// ErrNoUndoTarget is returned when an undo finds nothing to revert.
// It is a user-facing notice ("nothing to undo"), not a fatal condition.
var ErrNoUndoTarget = errors.New("nothing to undo")

// ErrRedoRequiresSelection is returned by redo requests.
// Redo never guesses a branch; the caller must pick a child node explicitly.
var ErrRedoRequiresSelection = errors.New("redo requires explicit node selection")

// ErrStorageQuotaExceeded is returned by the persistence boundary when a
// serialized document does not fit the configured capacity.
var ErrStorageQuotaExceeded = errors.New("storage quota exceeded")

// ErrDocumentNotFound is returned when a document id cannot be found in the store.
var ErrDocumentNotFound = errors.New("document not found")

// ErrDocumentExists is returned when creating a document whose id is already taken.
var ErrDocumentExists = errors.New("document already exists")

// ErrCorruptTree marks a structural invariant violation (broken links, missing root).
var ErrCorruptTree = errors.New("corrupt history tree")
