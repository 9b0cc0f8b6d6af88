package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

func newDiffCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diff OLD.json NEW.json",
		Short: "Show nodes and edges added or removed between two snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldSnap, err := readSnapshot(args[0])
			if err != nil {
				return err
			}
			newSnap, err := readSnapshot(args[1])
			if err != nil {
				return err
			}
			d := graph.Diff(oldSnap, newSnap)

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{"added": d.Added, "removed": d.Removed})
			}
			printDiff(out, d)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the added and removed deltas as JSON")
	return cmd
}

func printDiff(w io.Writer, d graph.DiffResult) {
	fmt.Fprintf(w, "%s %s, %s\n",
		brand.Sprint("diff"),
		good.Sprintf("+%d nodes +%d edges", len(d.Added.Nodes), len(d.Added.Edges)),
		bad.Sprintf("-%d nodes -%d edges", len(d.Removed.Nodes), len(d.Removed.Edges)),
	)
	for _, n := range d.Added.Nodes {
		fmt.Fprintf(w, "  %s node %s\n", good.Sprint("+"), n.ID)
	}
	for _, e := range d.Added.Edges {
		fmt.Fprintf(w, "  %s edge %s\n", good.Sprint("+"), e.ID)
	}
	for _, n := range d.Removed.Nodes {
		fmt.Fprintf(w, "  %s node %s\n", bad.Sprint("-"), n.ID)
	}
	for _, e := range d.Removed.Edges {
		fmt.Fprintf(w, "  %s edge %s\n", bad.Sprint("-"), e.ID)
	}
	if d.Pushes() {
		fmt.Fprintln(w, subtle.Sprint("  (would be recorded in history)"))
	}
}
