package history

import (
	"errors"
	"fmt"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

var (
	// ErrNotDataAction is returned by a data-apply routine asked to apply a
	// selection or layout entry, which never touch graph data.
	ErrNotDataAction = errors.New("history: action does not carry graph data")
	// ErrUnknownAction is returned for action names outside the closed set.
	ErrUnknownAction = errors.New("history: unknown action")
)

// Action is the kind of a history entry. The set is closed; switches over
// it are expected to be exhaustive.
type Action string

const (
	ActionSelectNodes     Action = "select-nodes"
	ActionSelectEdges     Action = "select-edges"
	ActionLayout          Action = "layout"
	ActionAdd             Action = "add"
	ActionDelete          Action = "delete"
	ActionUpdate          Action = "update"
	ActionRender          Action = "render"
	ActionVisible         Action = "visible"
	ActionChangeData      Action = "changedata"
	ActionUpdateComboTree Action = "updateComboTree"
)

// Actions lists every action kind.
var Actions = []Action{
	ActionSelectNodes, ActionSelectEdges, ActionLayout,
	ActionAdd, ActionDelete, ActionUpdate, ActionRender,
	ActionVisible, ActionChangeData, ActionUpdateComboTree,
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// IsSelection reports whether a is one of the select-* kinds.
func (a Action) IsSelection() bool {
	return a == ActionSelectNodes || a == ActionSelectEdges
}

// IsBookkeeping reports whether pushing a keeps the redo branch. Selection
// and layout entries are recorded alongside other work, not as new edits.
func (a Action) IsBookkeeping() bool {
	return a.IsSelection() || a == ActionLayout
}

// SelectionKind maps a select-* action to the graph selection kind.
func (a Action) SelectionKind() graph.SelectionKind {
	if a == ActionSelectEdges {
		return graph.SelectEdges
	}
	return graph.SelectNodes
}
