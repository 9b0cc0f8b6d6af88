package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/history"
)

// ---------------------------------------------------------------------------
// Interaction hooks
// ---------------------------------------------------------------------------
//
// Each hook applies a user interaction to the canvas and records it as a
// history entry. Interactions that change nothing record nothing.

// NodeMove is a drag of one node to a new position.
type NodeMove struct {
	ID string  `json:"id" validate:"required"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// LayoutChange updates parts of the layout configuration. Nil fields are
// left unchanged.
type LayoutChange struct {
	Width   *float64       `json:"width,omitempty"`
	Height  *float64       `json:"height,omitempty"`
	Matrix  *[9]float64    `json:"matrix,omitempty"`
	Type    *string        `json:"type,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// Select replaces the node or edge selection.
func (s *Session) Select(ctx context.Context, kind graph.SelectionKind, ids []string) ([]string, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	action := history.ActionSelectNodes
	if kind == graph.SelectEdges {
		action = history.ActionSelectEdges
	}
	before := s.index.Selection(kind)
	_ = s.SetSelection(kind, ids)
	after := s.index.Selection(kind)
	if !slices.Equal(before, after) {
		s.stack.Push(history.NewEntry(action, history.SelectionPayload(before), history.SelectionPayload(after)))
		s.metrics.ObserveHistory("push", string(action))
	}
	return after, nil
}

// SetVisibility shows or hides elements. Unknown ids are skipped.
func (s *Session) SetVisibility(ctx context.Context, changes map[string]bool) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	before := make(map[string]bool, len(changes))
	after := make(map[string]bool, len(changes))
	for id, visible := range changes {
		if !s.index.HasElement(id) {
			continue
		}
		was := !s.index.IsHidden(id)
		if was == visible {
			continue
		}
		before[id] = was
		after[id] = visible
		s.index.SetVisible(id, visible)
	}
	if len(after) == 0 {
		return 0, nil
	}
	s.record(history.ActionVisible, history.VisibilityPayload(before), history.VisibilityPayload(after))
	s.dataChanged("visible")
	return len(after), nil
}

// DeleteElements removes nodes (with their edges) and edges by id.
func (s *Session) DeleteElements(ctx context.Context, ids []string) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	before := s.index.Snapshot()
	removed := 0
	for _, id := range ids {
		if s.index.RemoveElement(id) {
			removed++
		}
	}
	if removed == 0 {
		return 0, ErrNothingToChange
	}
	s.record(history.ActionDelete, history.SnapshotPayload(before), history.SnapshotPayload(s.index.Snapshot()))
	s.dataChanged("delete")
	return removed, nil
}

// DragNodes moves nodes to new positions.
func (s *Session) DragNodes(ctx context.Context, moves []NodeMove) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	before := s.index.Snapshot()
	moved := 0
	for _, m := range moves {
		if s.index.UpdateNode(graph.Node{ID: m.ID, X: graph.Float(m.X), Y: graph.Float(m.Y)}) {
			moved++
		}
	}
	if moved == 0 {
		return 0, ErrNothingToChange
	}
	s.record(history.ActionUpdate, history.SnapshotPayload(before), history.SnapshotPayload(s.index.Snapshot()))
	s.dataChanged("update")
	return moved, nil
}

// Render merges attribute changes into existing nodes and edges, the way a
// styling pass re-renders elements in place.
func (s *Session) Render(ctx context.Context, nodes []graph.Node, edges []graph.Edge) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	before := s.index.Snapshot()
	changed := 0
	for _, n := range nodes {
		if s.index.UpdateNode(n) {
			changed++
		}
	}
	for _, e := range edges {
		if s.index.UpdateEdge(e) {
			changed++
		}
	}
	if changed == 0 {
		return 0, ErrNothingToChange
	}
	s.record(history.ActionRender, history.SnapshotPayload(before), history.SnapshotPayload(s.index.Snapshot()))
	s.dataChanged("render")
	return changed, nil
}

// ChangeData replaces the canvas data wholesale, keeping coordinates as
// given. Unlike Reconcile with replace it performs no diff and no
// placement.
func (s *Session) ChangeData(ctx context.Context, snap graph.Snapshot) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	snap, _ = snap.Sanitize()
	before := s.index.Snapshot()
	s.index.SetLayoutMode(graph.LayoutPreserve)
	s.index.ChangeData(snap)
	s.record(history.ActionChangeData, history.SnapshotPayload(before), history.SnapshotPayload(snap))
	s.dataChanged("changedata")
	return nil
}

// SetLayout updates the viewport and layout configuration.
func (s *Session) SetLayout(ctx context.Context, change LayoutChange) (graph.LayoutState, error) {
	if err := s.lock(ctx); err != nil {
		return graph.LayoutState{}, err
	}
	defer s.unlock()

	before := s.index.Layout()
	after := before.Clone()
	if change.Width != nil {
		after.Width = *change.Width
	}
	if change.Height != nil {
		after.Height = *change.Height
	}
	if change.Matrix != nil {
		after.Matrix = *change.Matrix
	}
	if change.Type != nil {
		after.Type = *change.Type
	}
	if change.Options != nil {
		after.Options = change.Options
	}
	s.index.SetLayout(after)
	s.record(history.ActionLayout, history.LayoutPayload(before), history.LayoutPayload(after))
	s.emit(EventLayoutChanged, LayoutEvent{SessionID: s.id, Layout: s.index.Layout()})
	s.scheduleSave()
	return s.index.Layout(), nil
}

// AddCombo adds or replaces a combo. It is not recorded in history.
func (s *Session) AddCombo(ctx context.Context, c graph.Combo) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if c.ID == "" {
		return fmt.Errorf("session: add combo: %w", graph.ErrComboNotFound)
	}
	if c.ParentID != "" && !s.hasCombo(c.ParentID) {
		return fmt.Errorf("session: add combo parent %q: %w", c.ParentID, graph.ErrComboNotFound)
	}
	s.index.AddCombo(c)
	s.dataChanged("combo")
	return nil
}

// UpdateComboTree re-parents combos. Moves that name unknown combos or
// would create a cycle are skipped.
func (s *Session) UpdateComboTree(ctx context.Context, changes []graph.ComboChange) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	parents := make(map[string]string)
	for _, c := range s.index.Combos() {
		parents[c.ID] = c.ParentID
	}

	var before, after []graph.ComboChange
	for _, ch := range changes {
		prev, ok := parents[ch.ComboID]
		if !ok || prev == ch.ParentID {
			continue
		}
		if !s.index.UpdateComboParent(ch.ComboID, ch.ParentID) {
			continue
		}
		parents[ch.ComboID] = ch.ParentID
		before = append(before, graph.ComboChange{ComboID: ch.ComboID, ParentID: prev})
		after = append(after, ch)
	}
	if len(after) == 0 {
		return 0, nil
	}
	// Undo walks the moves in reverse so nested moves unwind cleanly.
	slices.Reverse(before)
	s.record(history.ActionUpdateComboTree, history.CombosPayload(before), history.CombosPayload(after))
	s.dataChanged("updateComboTree")
	return len(after), nil
}

func (s *Session) hasCombo(id string) bool {
	for _, c := range s.index.Combos() {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) record(action history.Action, before, after history.Payload) {
	s.stack.Push(history.NewEntry(action, before, after))
	s.metrics.ObserveHistory("push", string(action))
}

// ---------------------------------------------------------------------------
// Undo / Redo
// ---------------------------------------------------------------------------

// Undo reverts the newest undoable entry.
func (s *Session) Undo(ctx context.Context) (history.Result, error) {
	return s.replay(ctx, "undo", history.Undo)
}

// Redo re-applies the newest redo entry.
func (s *Session) Redo(ctx context.Context) (history.Result, error) {
	return s.replay(ctx, "redo", history.Redo)
}

func (s *Session) replay(ctx context.Context, op string, fn func(*history.Stack, history.Applier) (history.Result, error)) (history.Result, error) {
	if err := s.lock(ctx); err != nil {
		return history.Result{}, err
	}
	defer s.unlock()

	res, err := fn(s.stack, s)
	if err != nil {
		return res, fmt.Errorf("session: %w", err)
	}
	if !res.Applied {
		return res, nil
	}
	s.metrics.ObserveHistory(op, string(res.Action))
	if !res.Action.IsSelection() {
		s.dataChanged(op + ":" + string(res.Action))
	}
	return res, nil
}
