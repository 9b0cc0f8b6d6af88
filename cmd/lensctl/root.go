package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

// Output colors.
var (
	brand  = color.New(color.FgHiGreen, color.Bold)
	subtle = color.New(color.FgHiBlack)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
	info   = color.New(color.FgCyan)
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var verbose, noColor bool

	root := &cobra.Command{
		Use:           "lensctl",
		Short:         "Offline tools for VYUHA Lens graph snapshots",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newDiffCmd(),
		newPathsCmd(),
		newReplayCmd(),
	)
	return root
}

// readSnapshot loads a JSON snapshot and sanitizes it.
func readSnapshot(path string) (graph.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return graph.Snapshot{}, err
	}
	defer f.Close()

	var snap graph.Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return graph.Snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	clean, dropped := snap.Sanitize()
	if dropped > 0 {
		slog.Warn("dropped dangling edges", "file", path, "count", dropped)
	}
	return clean, nil
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
