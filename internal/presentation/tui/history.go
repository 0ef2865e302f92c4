package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/history"
)

// HistoryMarkdown renders a history log as an indented markdown list, one
// item per node in depth-first order. The current node is bold and the
// live path is marked with a bullet.
func HistoryMarkdown(title string, entries []history.Entry) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(fmt.Sprintf("# %s\n\n", title))
	}
	if len(entries) == 0 {
		sb.WriteString("_No history._\n")
		return sb.String()
	}

	for _, e := range entries {
		marker := " "
		if e.OnCurrentPath {
			marker = "●"
		}
		label := e.Label
		if label == "" {
			label = string(e.ChangeKind)
		}
		if e.Current {
			label = "**" + label + "** ← current"
		}

		sb.WriteString(strings.Repeat("  ", e.Depth))
		sb.WriteString(fmt.Sprintf("- %s %s `%s` _%s_ %s\n",
			marker, label, shortID(e.ID), e.ChangeKind, e.Timestamp.Format("2006-01-02 15:04:05")))
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
