package history

import (
	"time"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

// Payload is one side of a history entry. Exactly one field is set, chosen
// by the entry's action:
//
//	add, delete, update, render, changedata → Snapshot
//	select-nodes, select-edges               → Selection
//	visible                                   → Visibility (id → visible)
//	layout                                    → Layout
//	updateComboTree                           → Combos
type Payload struct {
	Snapshot   *graph.Snapshot     `json:"snapshot,omitempty"`
	Selection  []string            `json:"selection,omitempty"`
	Visibility map[string]bool     `json:"visibility,omitempty"`
	Layout     *graph.LayoutState  `json:"layout,omitempty"`
	Combos     []graph.ComboChange `json:"combos,omitempty"`
}

func SnapshotPayload(s graph.Snapshot) Payload {
	c := s.Clone()
	return Payload{Snapshot: &c}
}

func SelectionPayload(ids []string) Payload {
	return Payload{Selection: append([]string{}, ids...)}
}

func VisibilityPayload(v map[string]bool) Payload {
	m := make(map[string]bool, len(v))
	for k, b := range v {
		m[k] = b
	}
	return Payload{Visibility: m}
}

func LayoutPayload(l graph.LayoutState) Payload {
	c := l.Clone()
	return Payload{Layout: &c}
}

func CombosPayload(changes []graph.ComboChange) Payload {
	return Payload{Combos: append([]graph.ComboChange{}, changes...)}
}

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	var c Payload
	if p.Snapshot != nil {
		s := p.Snapshot.Clone()
		c.Snapshot = &s
	}
	if p.Selection != nil {
		c.Selection = append([]string{}, p.Selection...)
	}
	if p.Visibility != nil {
		c.Visibility = make(map[string]bool, len(p.Visibility))
		for k, v := range p.Visibility {
			c.Visibility[k] = v
		}
	}
	if p.Layout != nil {
		l := p.Layout.Clone()
		c.Layout = &l
	}
	if p.Combos != nil {
		c.Combos = append([]graph.ComboChange{}, p.Combos...)
	}
	return c
}

// Entry records one reversible transition. Entries are values and are
// copied in and out of the stack, so a caller cannot change a recorded
// entry after the fact.
type Entry struct {
	Action Action    `json:"action"`
	Before Payload   `json:"before"`
	After  Payload   `json:"after"`
	At     time.Time `json:"at"`
}

// NewEntry builds an entry from deep copies of before and after.
func NewEntry(action Action, before, after Payload) Entry {
	return Entry{
		Action: action,
		Before: before.Clone(),
		After:  after.Clone(),
		At:     time.Now().UTC(),
	}
}

func (e Entry) clone() Entry {
	e.Before = e.Before.Clone()
	e.After = e.After.Clone()
	return e
}

// Summary is the lightweight description of an entry used by listings.
type Summary struct {
	Action Action    `json:"action"`
	At     time.Time `json:"at"`
}
