package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/pathfind"
)

func newPathsCmd() *cobra.Command {
	var (
		from, to  string
		strategy  string
		maxDepth  int
		threshold int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "paths SNAPSHOT.json --from A --to B",
		Short: "Enumerate paths between two nodes of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshot(args[0])
			if err != nil {
				return err
			}
			strat, err := pathfind.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			if strat == pathfind.StrategyAuto {
				strat = pathfind.ChooseStrategy(len(snap.Edges), threshold)
			}

			adj := graph.BuildAdjacency(snap.Nodes, snap.Edges)
			nameOf := pathfind.NameLookup(snap)
			paths := pathfind.SortForDisplay(
				pathfind.FindAllPaths(from, to, adj, snap.Nodes, snap.Edges, strat, maxDepth),
				nameOf,
			)

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{"strategy": strat, "paths": paths})
			}
			fmt.Fprintf(out, "%s %s -> %s (%s)\n", brand.Sprint("paths"), from, to, info.Sprint(strat))
			if len(paths) == 0 {
				fmt.Fprintln(out, subtle.Sprint("  no path found"))
				return nil
			}
			for i, p := range paths {
				fmt.Fprintf(out, "  %2d. %s %s\n", i+1, pathfind.NamePath(p, nameOf), subtle.Sprintf("(%d hops)", p.Len()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Start node id")
	cmd.Flags().StringVar(&to, "to", "", "End node id")
	cmd.Flags().StringVar(&strategy, "strategy", "auto", "Traversal: auto, bfs or dfs")
	cmd.Flags().IntVar(&maxDepth, "depth", pathfind.DefaultMaxDepth, "Hop ceiling (dfs; 0 leaves bfs unbounded)")
	cmd.Flags().IntVar(&threshold, "bfs-threshold", pathfind.DefaultBFSEdgeThreshold, "Edge count above which auto picks bfs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print paths as JSON")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}
