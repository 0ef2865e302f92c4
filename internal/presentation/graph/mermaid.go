package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/history"
)

// GenerateMermaid produces a Mermaid flowchart of a history tree from its
// entries (as returned by history.Tree.Entries).
// It applies semantic styling:
// - Root: ((Circle))
// - Scoped undo: [/Parallelogram/], with a dotted link to the change it reverts
// - Assistant: [[Subroutine]]
// - Default: [Rectangle]
// Edges along the live path are drawn thick; the live path and the current
// node get their own classes.
func GenerateMermaid(entries []history.Entry) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var onPath []string
	current := ""

	for _, e := range entries {
		safeID := sanitizeMermaidID(e.ID)

		opener, closer := "[", "]"
		switch {
		case e.ParentID == "":
			opener, closer = "((", "))"
		case e.ChangeKind.IsScopedUndo():
			opener, closer = "[/", "/]"
		case e.ChangeKind == domain.ChangeAssistant:
			opener, closer = "[[", "]]"
		}

		sb.WriteString(fmt.Sprintf("    %s%s\"%s <br/> %s · %s\"%s\n",
			safeID, opener, escapeLabel(e.Label), e.ChangeKind, e.Timestamp.Format("15:04:05"), closer))

		if e.ParentID != "" {
			arrow := "-->"
			if e.OnCurrentPath {
				arrow = "==>"
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(e.ParentID), arrow, safeID))
		}
		if e.UndoOf != "" {
			sb.WriteString(fmt.Sprintf("    %s -. \"reverts\" .-> %s\n", safeID, sanitizeMermaidID(e.UndoOf)))
		}

		if e.Current {
			current = safeID
		} else if e.OnCurrentPath {
			onPath = append(onPath, safeID)
		}
	}

	if current != "" {
		sb.WriteString("\n    %% Live Path Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef live fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		for _, id := range onPath {
			sb.WriteString(fmt.Sprintf("    class %s live;\n", id))
		}
		sb.WriteString(fmt.Sprintf("    class %s current;\n", current))
	}

	return sb.String()
}

// sanitizeMermaidID prefixes ids so that reserved words ("end") and
// leading digits never reach Mermaid as bare identifiers.
func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return "n_" + s
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.ReplaceAll(s, "\n", " ")
}
