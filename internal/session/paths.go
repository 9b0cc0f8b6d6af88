package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/pathfind"
)

// NoPathNotice is reported when a query finds nothing.
const NoPathNotice = "no path found"

// PathQuery asks for every path joining the given nodes. An empty IDs list
// uses the current node selection.
type PathQuery struct {
	IDs      []string          `json:"ids"`
	Strategy pathfind.Strategy `json:"strategy,omitempty"`
	MaxDepth int               `json:"max_depth,omitempty"`
}

// PathResult is the answer to a PathQuery, tagged with the generation of
// the snapshot it was computed against.
type PathResult struct {
	Paths      []pathfind.Path   `json:"paths"`
	Names      []string          `json:"names"`
	Strategy   pathfind.Strategy `json:"strategy"`
	MaxDepth   int               `json:"max_depth"`
	Generation uint64            `json:"generation"`
	Notice     string            `json:"notice,omitempty"`
}

// Paths runs a path query against the current data snapshot. It does not
// block mutations; identical concurrent queries on the same generation
// share one search.
func (s *Session) Paths(ctx context.Context, q PathQuery) (PathResult, error) {
	if s.closed.Load() {
		return PathResult{}, ErrSessionClosed
	}
	snap, gen := s.Snapshot()

	ids := q.IDs
	if len(ids) == 0 {
		ids = s.index.Selection(graph.SelectNodes)
	}
	if len(ids) < 2 {
		return PathResult{}, ErrSelectionTooSmall
	}
	strategy := q.Strategy
	if strategy == "" || strategy == pathfind.StrategyAuto {
		strategy = pathfind.ChooseStrategy(len(snap.Edges), s.opts.BFSEdgeThreshold)
	}
	// BFS runs unbounded unless asked otherwise.
	depth := q.MaxDepth
	if depth <= 0 && strategy == pathfind.StrategyDFS {
		depth = s.opts.PathMaxDepth
	}

	key := fmt.Sprintf("%d|%s|%s|%d", gen, strings.Join(ids, ","), strategy, depth)
	start := time.Now()
	ch := s.flight.DoChan(key, func() (any, error) {
		nameOf := pathfind.NameLookup(snap)
		paths := pathfind.SortForDisplay(pathfind.FindSelectionPaths(ids, snap, strategy, depth), nameOf)
		names := make([]string, len(paths))
		for i, p := range paths {
			names[i] = pathfind.NamePath(p, nameOf)
		}
		return PathResult{
			Paths:      paths,
			Names:      names,
			Strategy:   strategy,
			MaxDepth:   depth,
			Generation: gen,
		}, nil
	})

	select {
	case <-ctx.Done():
		return PathResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return PathResult{}, r.Err
		}
		res := r.Val.(PathResult)
		// The shared value must not be handed out twice.
		res.Paths = append([]pathfind.Path(nil), res.Paths...)
		res.Names = append([]string(nil), res.Names...)
		if len(res.Paths) == 0 {
			res.Notice = NoPathNotice
		}
		s.metrics.ObservePaths(string(strategy), r.Shared, len(res.Paths), time.Since(start))
		return res, nil
	}
}
