package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vyuha/vyuha-lens/internal/feed"
	"github.com/vyuha/vyuha-lens/internal/session"
	"github.com/vyuha/vyuha-lens/internal/storage"
)

func newReplayCmd() *cobra.Command {
	var (
		steps   bool
		undo    int
		dbPath  string
		history int
	)

	cmd := &cobra.Command{
		Use:   "replay FEED.ndjson",
		Short: "Replay a snapshot feed through an in-memory session",
		Long: `Replay reconciles every line of an NDJSON feed into a fresh session,
optionally undoes the last N recorded steps, and prints the final history
depths and snapshot size. With --db the resulting session is saved so a
server started on the same database restores it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			lines, err := feed.ReadAll(f)
			f.Close()
			if err != nil {
				return err
			}

			opts := session.DefaultOptions()
			opts.HistoryDepth = history
			opts.SaveDebounce = time.Hour

			var store session.Store
			if dbPath != "" {
				st, err := storage.New(dbPath)
				if err != nil {
					return err
				}
				defer st.Close()
				store = st
			}

			out := cmd.OutOrStdout()
			sess := session.New(uuid.NewString(), opts, nil, store, nil)
			if steps {
				sess.OnReconciled(func(_ context.Context, res session.ReconcileResult) {
					printStep(out, res)
				})
			}
			return replay(cmd.Context(), out, sess, lines, undo, store != nil)
		},
	}
	cmd.Flags().BoolVar(&steps, "steps", false, "Print every reconcile step")
	cmd.Flags().IntVar(&undo, "undo", 0, "Undo this many steps after the replay")
	cmd.Flags().StringVar(&dbPath, "db", "", "Save the replayed session to this SQLite database")
	cmd.Flags().IntVar(&history, "history-depth", session.DefaultOptions().HistoryDepth, "Undo/redo stack capacity")
	return cmd
}

func replay(ctx context.Context, out io.Writer, sess *session.Session, lines []feed.Line, undo int, save bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for i, l := range lines {
		if _, err := sess.Reconcile(ctx, l.Snapshot, l.Mode); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	for i := 0; i < undo; i++ {
		res, err := sess.Undo(ctx)
		if err != nil {
			return fmt.Errorf("undo %d: %w", i+1, err)
		}
		if !res.Applied {
			fmt.Fprintln(out, subtle.Sprintf("  nothing left to undo after %d steps", i))
			break
		}
	}

	snap, gen := sess.Snapshot()
	st := sess.History()
	fmt.Fprintf(out, "%s %s\n", brand.Sprint("replay"), sess.ID())
	fmt.Fprintf(out, "  %-12s %d\n", "lines", len(lines))
	fmt.Fprintf(out, "  %-12s %d\n", "generation", gen)
	fmt.Fprintf(out, "  %-12s %d nodes, %d edges\n", "snapshot", len(snap.Nodes), len(snap.Edges))
	fmt.Fprintf(out, "  %-12s undo=%d redo=%d\n", "history", st.UndoDepth, st.RedoDepth)

	if save {
		if err := sess.Flush(ctx); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Fprintln(out, good.Sprint("  saved"))
	}
	return sess.Close(ctx)
}

func printStep(w io.Writer, res session.ReconcileResult) {
	mark := subtle.Sprint("·")
	if res.Recorded {
		mark = info.Sprint(string(res.Action))
	}
	fmt.Fprintf(w, "  gen %-4d %-8s %-6s %s %s  %s\n",
		res.Generation,
		res.MergeMode,
		res.LayoutMode,
		good.Sprintf("+%d/+%d", len(res.AddedNodes), len(res.AddedEdges)),
		bad.Sprintf("-%d/-%d", len(res.RemovedNodes), len(res.RemovedEdges)),
		mark,
	)
}
