package domain

import "fmt"

// ChangeKind identifies which part of the document a history node changed.
type ChangeKind string

const (
	ChangeCreate    ChangeKind = "create"
	ChangeEditor    ChangeKind = "editor"
	ChangeCharacter ChangeKind = "character"
	ChangeWorld     ChangeKind = "world"
	ChangeKnowledge ChangeKind = "knowledge"
	ChangePlot      ChangeKind = "plot"
	ChangeTimeline  ChangeKind = "timeline"
	ChangeChart     ChangeKind = "chart"
	ChangeOutline   ChangeKind = "outline"
	ChangeAssistant ChangeKind = "assistant"
	ChangeSettings  ChangeKind = "settings"

	// Synthetic kinds recorded by scoped undo.
	ChangeUndoText      ChangeKind = "undo_text"
	ChangeUndoData      ChangeKind = "undo_data"
	ChangeUndoAssistant ChangeKind = "undo_assistant"
)

// ChangeKinds lists every known kind, in declaration order.
var ChangeKinds = []ChangeKind{
	ChangeCreate,
	ChangeEditor,
	ChangeCharacter,
	ChangeWorld,
	ChangeKnowledge,
	ChangePlot,
	ChangeTimeline,
	ChangeChart,
	ChangeOutline,
	ChangeAssistant,
	ChangeSettings,
	ChangeUndoText,
	ChangeUndoData,
	ChangeUndoAssistant,
}

// Valid reports whether k is one of the declared kinds.
func (k ChangeKind) Valid() bool {
	for _, known := range ChangeKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsScopedUndo reports whether k was synthesized by a scoped undo.
func (k ChangeKind) IsScopedUndo() bool {
	switch k {
	case ChangeUndoText, ChangeUndoData, ChangeUndoAssistant:
		return true
	}
	return false
}

// ParseChangeKind converts a wire value into a ChangeKind.
func ParseChangeKind(s string) (ChangeKind, error) {
	k := ChangeKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown change kind %q", s)
	}
	return k, nil
}

// Domain is an undo scope: the subset of document fields an undo may touch.
type Domain string

const (
	DomainAll       Domain = "all"
	DomainText      Domain = "text"
	DomainData      Domain = "data"
	DomainAssistant Domain = "assistant"
)

// ParseDomain converts a wire value into a Domain.
// The empty string is treated as DomainAll.
func ParseDomain(s string) (Domain, error) {
	switch d := Domain(s); d {
	case "":
		return DomainAll, nil
	case DomainAll, DomainText, DomainData, DomainAssistant:
		return d, nil
	}
	return "", fmt.Errorf("unknown undo domain %q", s)
}

// Valid reports whether d is one of the declared domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainAll, DomainText, DomainData, DomainAssistant:
		return true
	}
	return false
}

// Matches reports whether a change of kind k affects fields of domain d.
// Synthetic undo kinds never match; the resolver handles them separately.
func (d Domain) Matches(k ChangeKind) bool {
	switch k {
	case ChangeEditor:
		return d == DomainAll || d == DomainText
	case ChangeCharacter, ChangeWorld, ChangeKnowledge, ChangePlot,
		ChangeTimeline, ChangeChart, ChangeOutline:
		return d == DomainAll || d == DomainData
	case ChangeAssistant:
		return d == DomainAll || d == DomainAssistant
	case ChangeSettings, ChangeCreate:
		return d == DomainAll
	case ChangeUndoText, ChangeUndoData, ChangeUndoAssistant:
		return false
	}
	return false
}

// UndoKind returns the synthetic kind recorded when undoing within d.
// DomainAll rewinds instead of appending and has no synthetic kind.
func (d Domain) UndoKind() (ChangeKind, bool) {
	switch d {
	case DomainText:
		return ChangeUndoText, true
	case DomainData:
		return ChangeUndoData, true
	case DomainAssistant:
		return ChangeUndoAssistant, true
	case DomainAll:
		return "", false
	}
	return "", false
}

// Carry copies the fields of domain d from src into dst, leaving every other
// field of dst untouched. dst and src must not share backing storage the
// caller intends to mutate later; the history package clones before calling.
func (d Domain) Carry(dst *Document, src Document) {
	switch d {
	case DomainAll:
		*dst = src
	case DomainText:
		dst.Text = src.Text
	case DomainData:
		dst.Characters = src.Characters
		dst.World = src.World
		dst.Knowledge = src.Knowledge
		dst.Plot = src.Plot
		dst.Timeline = src.Timeline
		dst.Charts = src.Charts
		dst.Outline = src.Outline
	case DomainAssistant:
		dst.Dialogue = src.Dialogue
	}
}
