package pathfind

import (
	"sort"
	"strings"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

// SortForDisplay orders paths by step count and drops paths whose
// human-readable node-name sequence was already shown. nameOf maps a node
// id to its display name. The input slice is not modified.
func SortForDisplay(paths []Path, nameOf func(id string) string) []Path {
	sorted := make([]Path, len(paths))
	copy(sorted, paths)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Len() < sorted[j].Len()
	})

	seen := make(map[string]bool, len(sorted))
	out := make([]Path, 0, len(sorted))
	for _, p := range sorted {
		key := NamePath(p, nameOf)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// NamePath renders a path as its node names joined with arrows.
func NamePath(p Path, nameOf func(id string) string) string {
	names := make([]string, len(p.Nodes))
	for i, id := range p.Nodes {
		names[i] = nameOf(id)
	}
	return strings.Join(names, " -> ")
}

// NameLookup returns a nameOf function backed by the snapshot's nodes.
// Unknown ids fall back to their raw id.
func NameLookup(snap graph.Snapshot) func(string) string {
	idx := snap.NodeIndex()
	return func(id string) string {
		if n, ok := idx[id]; ok {
			return n.DisplayName()
		}
		_, raw := graph.ParseNodeID(id)
		return raw
	}
}

// FindSelectionPaths runs FindAllPaths from the first selected node to each
// other selected node over snap and concatenates the results. Fewer than
// two selected ids yields an empty slice.
func FindSelectionPaths(selected []string, snap graph.Snapshot, strategy Strategy, maxDepth int) []Path {
	if len(selected) < 2 {
		return []Path{}
	}
	adj := graph.BuildAdjacency(snap.Nodes, snap.Edges)
	from := selected[0]
	out := []Path{}
	for _, to := range selected[1:] {
		out = append(out, FindAllPaths(from, to, adj, snap.Nodes, snap.Edges, strategy, maxDepth)...)
	}
	return out
}
