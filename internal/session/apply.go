package session

import (
	"fmt"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/history"
	"github.com/vyuha/vyuha-lens/internal/layout"
)

// ---------------------------------------------------------------------------
// Data apply
// ---------------------------------------------------------------------------

// The methods below make *Session a history.Applier. They are only called
// by history.Undo and history.Redo while the session is held.

var _ history.Applier = (*Session)(nil)

// Apply puts one side of a history entry onto the canvas. Selection and
// layout entries carry no graph data and are rejected.
func (s *Session) Apply(action history.Action, p history.Payload) error {
	switch action {
	case history.ActionVisible:
		for id, visible := range p.Visibility {
			s.index.SetVisible(id, visible)
		}
		return nil

	case history.ActionUpdate, history.ActionRender:
		if p.Snapshot == nil {
			return fmt.Errorf("%w: %s", ErrEmptyPayload, action)
		}
		// Payloads hold whole elements, so replay overwrites rather than
		// merges: keys added by the change must disappear on undo.
		for _, n := range p.Snapshot.Nodes {
			s.index.ReplaceNode(n)
		}
		for _, e := range p.Snapshot.Edges {
			s.index.ReplaceEdge(e)
		}
		return nil

	case history.ActionChangeData:
		if p.Snapshot == nil {
			return fmt.Errorf("%w: %s", ErrEmptyPayload, action)
		}
		s.index.SetLayoutMode(graph.LayoutPreserve)
		s.index.ChangeData(*p.Snapshot)
		return nil

	case history.ActionAdd, history.ActionDelete:
		if p.Snapshot == nil {
			return fmt.Errorf("%w: %s", ErrEmptyPayload, action)
		}
		s.syncData(*p.Snapshot)
		return nil

	case history.ActionUpdateComboTree:
		for _, c := range p.Combos {
			s.index.UpdateComboParent(c.ComboID, c.ParentID)
		}
		return nil

	case history.ActionSelectNodes, history.ActionSelectEdges, history.ActionLayout:
		return fmt.Errorf("%w: %s", history.ErrNotDataAction, action)
	}
	return fmt.Errorf("%w: %q", history.ErrUnknownAction, action)
}

// SetSelection replaces the selection of the given kind.
func (s *Session) SetSelection(kind graph.SelectionKind, ids []string) error {
	s.index.SetSelection(kind, ids)
	s.emit(EventSelectionChanged, SelectionEvent{SessionID: s.id, Kind: kind, IDs: s.index.Selection(kind)})
	return nil
}

// FixPositions gives every unplaced node in p its current canvas position.
func (s *Session) FixPositions(p history.Payload) history.Payload {
	return layout.FixPositions(p, s.index)
}

// syncData makes the canvas hold exactly the elements of target, matched
// by id. Elements already present keep their canvas state.
func (s *Session) syncData(target graph.Snapshot) {
	target, _ = target.Sanitize()
	wantNodes := target.NodeIndex()
	wantEdges := target.EdgeIndex()

	current := s.index.Snapshot()
	for _, e := range current.Edges {
		if _, ok := wantEdges[e.ID]; !ok {
			s.index.RemoveElement(e.ID)
		}
	}
	for _, n := range current.Nodes {
		if _, ok := wantNodes[n.ID]; !ok {
			s.index.RemoveElement(n.ID)
		}
	}
	for _, n := range target.Nodes {
		if !s.index.HasElement(n.ID) {
			s.index.AddNode(n)
		}
	}
	for _, e := range target.Edges {
		if !s.index.HasElement(e.ID) {
			s.index.AddEdge(e)
		}
	}
}
