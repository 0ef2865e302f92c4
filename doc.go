/*
Package arbor is a branching version-history engine for a single evolving document.

Every recorded change stores a full snapshot of the document in a tree of
history nodes. Moving back in time never discards the future: editing from an
older snapshot simply grows a new branch beside the old one.

# Concepts

  - Append records a snapshot as a child of the current node.
  - Jump installs any existing snapshot as the live document without recording anything.
  - Undo reverts the latest change of one domain (text, data, assistant) and
    records the result as a new node, leaving unrelated fields untouched.
    Undoing in the "all" domain rewinds the current pointer to its parent.
  - Redo never guesses: it reports the children of the current node and the
    caller picks one with Jump.
  - Prune keeps a document under a node ceiling by discarding the oldest
    branches first.

# Usage

	eng, err := arbor.New("./drafts")
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if _, err := eng.Create(ctx, "novel", "My Novel", domain.Document{}); err != nil {
		log.Fatal(err)
	}
	_, _ = eng.Append(ctx, "novel", domain.Document{Text: "It was a dark night."}, domain.ChangeEditor, "Edit text")

	res, err := eng.Undo(ctx, "novel", domain.DomainText)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Label)

	_ = eng.Save(ctx, "novel")
*/
package arbor
