package history

import (
	"fmt"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

// Applier is the live canvas as seen by Undo and Redo.
type Applier interface {
	// Apply replays a data payload for the given action kind.
	Apply(action Action, p Payload) error
	// SetSelection replaces the selected set without touching graph data.
	SetSelection(kind graph.SelectionKind, ids []string) error
	// FixPositions returns p with missing node coordinates backfilled from
	// the canvas.
	FixPositions(p Payload) Payload
}

// Result describes what an Undo or Redo call did.
type Result struct {
	Applied bool     `json:"applied"`
	Action  Action   `json:"action,omitempty"`
	Skipped []Action `json:"skipped,omitempty"`
	State   State    `json:"state"`
}

// Undo reverts the newest undoable entry.
//
// Layout entries are moved to redo and the next entry is undone in their
// place. Selection entries hand Before to the selection setter. Delete
// entries re-apply Before. Every other kind re-applies Before after both
// payloads pass through FixPositions, and the fixed entry is what lands on
// the redo sequence.
//
// With only the sentinel (or nothing) left, Undo does nothing beyond moving
// the layout entries it passed. If the applier fails, the popped entry and
// any layout entries passed on the way are put back on undo and the error
// returned; the stack is then as it was before the call.
func Undo(s *Stack, a Applier) (Result, error) {
	var res Result
	var skipped []Entry
	for {
		if s.State().UndoDepth < 2 {
			for _, l := range skipped {
				s.pushRedo(l)
			}
			res.State = s.State()
			return res, nil
		}
		e, _ := s.PopUndo()

		var moved Entry
		var err error
		switch e.Action {
		case ActionLayout:
			skipped = append(skipped, e)
			res.Skipped = append(res.Skipped, e.Action)
			continue
		case ActionSelectNodes, ActionSelectEdges:
			moved, err = e, a.SetSelection(e.Action.SelectionKind(), e.Before.Selection)
		case ActionDelete:
			moved, err = e, a.Apply(e.Action, e.Before)
		case ActionAdd, ActionUpdate, ActionRender, ActionVisible, ActionChangeData, ActionUpdateComboTree:
			moved = fixed(e, a)
			err = a.Apply(e.Action, moved.Before)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownAction, e.Action)
		}
		if err != nil {
			s.pushUndo(e)
			for i := len(skipped) - 1; i >= 0; i-- {
				s.pushUndo(skipped[i])
			}
			res.Skipped = nil
			res.State = s.State()
			return res, fmt.Errorf("history: undo %s: %w", e.Action, err)
		}

		for _, l := range skipped {
			s.pushRedo(l)
		}
		s.pushRedo(moved)
		res.Applied = true
		res.Action = e.Action
		res.State = s.State()
		return res, nil
	}
}

// Redo is the mirror of Undo: it re-applies After of the newest redo entry
// and moves the entry back to undo. Layout entries are moved and skipped.
// An empty redo sequence is a no-op; a failed apply leaves the stack as it
// was.
func Redo(s *Stack, a Applier) (Result, error) {
	var res Result
	var skipped []Entry
	for {
		e, ok := s.PopRedo()
		if !ok {
			for _, l := range skipped {
				s.pushUndo(l)
			}
			res.State = s.State()
			return res, nil
		}

		var moved Entry
		var err error
		switch e.Action {
		case ActionLayout:
			skipped = append(skipped, e)
			res.Skipped = append(res.Skipped, e.Action)
			continue
		case ActionSelectNodes, ActionSelectEdges:
			moved, err = e, a.SetSelection(e.Action.SelectionKind(), e.After.Selection)
		case ActionDelete:
			moved, err = e, a.Apply(e.Action, e.After)
		case ActionAdd, ActionUpdate, ActionRender, ActionVisible, ActionChangeData, ActionUpdateComboTree:
			moved = fixed(e, a)
			err = a.Apply(e.Action, moved.After)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownAction, e.Action)
		}
		if err != nil {
			s.pushRedo(e)
			for i := len(skipped) - 1; i >= 0; i-- {
				s.pushRedo(skipped[i])
			}
			res.Skipped = nil
			res.State = s.State()
			return res, fmt.Errorf("history: redo %s: %w", e.Action, err)
		}

		for _, l := range skipped {
			s.pushUndo(l)
		}
		s.pushUndo(moved)
		res.Applied = true
		res.Action = e.Action
		res.State = s.State()
		return res, nil
	}
}

// fixed returns a new entry whose payloads went through FixPositions.
func fixed(e Entry, a Applier) Entry {
	return Entry{
		Action: e.Action,
		Before: a.FixPositions(e.Before.Clone()),
		After:  a.FixPositions(e.After.Clone()),
		At:     e.At,
	}
}
