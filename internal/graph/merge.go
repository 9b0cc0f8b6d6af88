package graph

import (
	"fmt"
	"strings"
)

// MergeMode selects how an incoming snapshot combines with live state.
type MergeMode string

const (
	MergeAppend   MergeMode = "append"
	MergeReplace  MergeMode = "replace"
	MergeSubtract MergeMode = "subtract"
)

// ParseMergeMode converts a user-supplied string into a MergeMode. The
// empty string means append.
func ParseMergeMode(s string) (MergeMode, error) {
	switch MergeMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MergeAppend:
		return MergeAppend, nil
	case MergeReplace:
		return MergeReplace, nil
	case MergeSubtract:
		return MergeSubtract, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMergeMode, s)
}

// Merge combines incoming into live according to mode and returns the
// resulting transition. Live state is sanitized first; incoming edges may
// reference live nodes, so incoming is sanitized only where it stands alone.
//
//   - append:   incoming elements are unioned into live; nothing is removed.
//   - replace:  incoming becomes the new state.
//   - subtract: incoming edges are removed, then incoming nodes left with
//     fewer than two relevant connections are removed with their edges.
func Merge(live, incoming Snapshot, mode MergeMode) (DiffResult, error) {
	live, _ = live.Sanitize()

	switch mode {
	case MergeAppend, "":
		next, _ := union(live, withEdgeIDs(incoming)).Sanitize()
		return Diff(live, next), nil
	case MergeReplace:
		incoming, _ = incoming.Sanitize()
		res := Diff(live, incoming)
		res.Merged = incoming.Clone()
		return res, nil
	case MergeSubtract:
		return Diff(live, subtract(live, withEdgeIDs(incoming))), nil
	}
	return DiffResult{}, fmt.Errorf("%w: %q", ErrUnknownMergeMode, string(mode))
}

func withEdgeIDs(s Snapshot) Snapshot {
	out := Snapshot{Nodes: s.Nodes, Edges: make([]Edge, len(s.Edges))}
	for i, e := range s.Edges {
		if e.ID == "" {
			e.ID = ComposeEdgeID(e.Source, e.RelationType, e.Target)
		}
		out.Edges[i] = e
	}
	return out
}

// union returns live followed by every incoming element whose id is not
// already live. Edges are kept only when both endpoints exist in the union.
func union(live, incoming Snapshot) Snapshot {
	out := live.Clone()
	have := make(map[string]bool, len(live.Nodes)+len(incoming.Nodes))
	for _, n := range live.Nodes {
		have[n.ID] = true
	}
	for _, n := range incoming.Nodes {
		if !have[n.ID] {
			have[n.ID] = true
			out.Nodes = append(out.Nodes, n.Clone())
		}
	}
	haveEdge := make(map[string]bool, len(live.Edges))
	for _, e := range live.Edges {
		haveEdge[e.ID] = true
	}
	for _, e := range incoming.Edges {
		if haveEdge[e.ID] || !have[e.Source] || !have[e.Target] {
			continue
		}
		haveEdge[e.ID] = true
		out.Edges = append(out.Edges, e.Clone())
	}
	return out
}

// subtract removes incoming's edges from live, then removes incoming nodes
// whose remaining degree is below two. Only edges whose relation type
// appears among incoming's edges count toward that degree; when incoming
// carries no edges every relation type counts.
func subtract(live, incoming Snapshot) Snapshot {
	dropEdge := make(map[string]bool, len(incoming.Edges))
	relTypes := make(map[string]bool)
	for _, e := range incoming.Edges {
		dropEdge[e.ID] = true
		relTypes[e.RelationType] = true
	}

	remaining := make([]Edge, 0, len(live.Edges))
	for _, e := range live.Edges {
		if !dropEdge[e.ID] {
			remaining = append(remaining, e)
		}
	}

	degree := make(map[string]int)
	for _, e := range remaining {
		if len(relTypes) > 0 && !relTypes[e.RelationType] {
			continue
		}
		degree[e.Source]++
		if !e.IsSelfLoop() {
			degree[e.Target]++
		}
	}

	dropNode := make(map[string]bool)
	for _, n := range incoming.Nodes {
		if degree[n.ID] < 2 {
			dropNode[n.ID] = true
		}
	}

	out := Snapshot{
		Nodes: make([]Node, 0, len(live.Nodes)),
		Edges: make([]Edge, 0, len(remaining)),
	}
	for _, n := range live.Nodes {
		if !dropNode[n.ID] {
			out.Nodes = append(out.Nodes, n.Clone())
		}
	}
	for _, e := range remaining {
		if dropNode[e.Source] || dropNode[e.Target] {
			continue
		}
		out.Edges = append(out.Edges, e.Clone())
	}
	return out
}
