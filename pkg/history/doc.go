/*
Package history implements the branching version-history engine.

A Tree holds one node per recorded change. Each node stores the complete
document as of after that change, so any node can be restored directly:

	t := history.NewWithRoot(domain.Document{}, "create")
	t.Append(domain.Document{Text: "A"}, domain.ChangeEditor, "edit1")
	doc, err := t.Jump(rootID)

Undo comes in two flavours. Full undo (DomainAll) rewinds the current
pointer to the parent node. Scoped undo (text, data, assistant) finds the
nearest change affecting the domain, carries only that domain's fields
back from before the change, and records the result as a new node, so the
undo itself stays reachable in the branch view.

A Tree is not safe for concurrent use. Callers that share a tree across
goroutines confine it behind one lock (see package session).
*/
package history
