package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/history"
	"github.com/vyuha/vyuha-lens/internal/layout"
)

// ReconcileResult describes what a Reconcile did to the canvas.
type ReconcileResult struct {
	SessionID    string           `json:"session_id"`
	Generation   uint64           `json:"generation"`
	MergeMode    graph.MergeMode  `json:"merge_mode"`
	LayoutMode   graph.LayoutMode `json:"layout_mode"`
	AddedNodes   []string         `json:"added_nodes"`
	AddedEdges   []string         `json:"added_edges"`
	RemovedNodes []string         `json:"removed_nodes"`
	RemovedEdges []string         `json:"removed_edges"`
	Recorded     bool             `json:"recorded"`
	Action       history.Action   `json:"action,omitempty"`
	Anchor       layout.Position  `json:"anchor"`
	AnchorID     string           `json:"anchor_id,omitempty"`
	FlowEdges    []string         `json:"flow_edges"`
	History      history.State    `json:"history"`
}

// Relayout reports whether the renderer should run its own layout and
// recenter the viewport.
func (r ReconcileResult) Relayout() bool { return r.LayoutMode == graph.LayoutAuto }

// Reconcile folds an incoming snapshot into the live canvas.
//
// Phases: Diffing computes the merged snapshot for the merge mode and
// places new nodes; HistoryRecording pushes an add entry when nodes were
// added, or a delete entry when only edges were removed; LayoutModeSelect
// picks auto when neither the live nor the incoming snapshot is mostly
// positioned; DataApplied replaces the canvas data; PositionReconciled
// marks the new edges with the flow style.
//
// Only one Reconcile (or any other mutating operation) runs per session at
// a time. Callers queue on ctx.
func (s *Session) Reconcile(ctx context.Context, incoming graph.Snapshot, mode graph.MergeMode) (ReconcileResult, error) {
	if err := s.lock(ctx); err != nil {
		return ReconcileResult{}, err
	}
	defer s.unlock()

	start := time.Now()
	if mode == "" {
		mode = graph.MergeAppend
	}

	// ----- Diffing -----
	s.setPhase(PhaseDiffing)
	live := s.index.Snapshot()
	diff, err := graph.Merge(live, incoming, mode)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("session: reconcile: %w", err)
	}
	placement := s.placer.PlaceNewNodes(diff.Added.Nodes, diff.Added.Edges, diff.Merged, s.index)
	next := placement.Apply(diff.Merged)

	res := ReconcileResult{
		SessionID:    s.id,
		MergeMode:    mode,
		AddedNodes:   ids(diff.Added.Nodes),
		AddedEdges:   edgeIDs(diff.Added.Edges),
		RemovedNodes: ids(diff.Removed.Nodes),
		RemovedEdges: edgeIDs(diff.Removed.Edges),
		Anchor:       placement.Anchor,
		AnchorID:     placement.AnchorID,
		FlowEdges:    placement.FlowEdges,
	}

	// ----- HistoryRecording -----
	s.setPhase(PhaseHistoryRecording)
	if diff.Pushes() {
		action := history.ActionDelete
		if len(diff.Added.Nodes) > 0 {
			action = history.ActionAdd
		}
		s.stack.Push(history.NewEntry(action, history.SnapshotPayload(live), history.SnapshotPayload(next)))
		res.Recorded = true
		res.Action = action
	}

	// ----- LayoutModeSelect -----
	s.setPhase(PhaseLayoutModeSelect)
	res.LayoutMode = s.selectLayoutMode(live, incoming)
	s.index.SetLayoutMode(res.LayoutMode)

	// ----- DataApplied -----
	s.setPhase(PhaseDataApplied)
	s.index.ChangeData(next)

	// ----- PositionReconciled -----
	s.setPhase(PhasePositionReconciled)
	s.index.ClearEdgeStyles()
	for _, id := range placement.FlowEdges {
		s.index.SetEdgeStyle(id, graph.EdgeStyleFlow)
	}

	res.Generation = s.dataChanged("reconcile:" + string(mode))
	res.History = s.stack.State()

	s.mu.Lock()
	hooks := append([]ReconcileHook(nil), s.hooks...)
	s.mu.Unlock()
	hookCtx := markInFlight(ctx, s.id)
	for _, h := range hooks {
		h(hookCtx, res)
	}

	elapsed := time.Since(start)
	s.metrics.ObserveReconcile(string(mode), string(res.LayoutMode),
		len(res.AddedNodes)+len(res.AddedEdges), len(res.RemovedNodes)+len(res.RemovedEdges), elapsed)
	slog.Debug("reconciled",
		"session", s.id,
		"mode", mode,
		"layout", res.LayoutMode,
		"added_nodes", len(res.AddedNodes),
		"added_edges", len(res.AddedEdges),
		"removed_nodes", len(res.RemovedNodes),
		"removed_edges", len(res.RemovedEdges),
		"recorded", res.Recorded,
		"duration", elapsed,
	)
	return res, nil
}

// selectLayoutMode returns auto when both the live and the incoming
// snapshot fall below the positioned ratio, preserve otherwise.
func (s *Session) selectLayoutMode(live, incoming graph.Snapshot) graph.LayoutMode {
	if live.PositionedRatio() < s.opts.PositionedRatio && incoming.PositionedRatio() < s.opts.PositionedRatio {
		return graph.LayoutAuto
	}
	return graph.LayoutPreserve
}

func ids(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func edgeIDs(edges []graph.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.ID
	}
	return out
}
