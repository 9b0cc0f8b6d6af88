// Command lensctl works with knowledge-graph snapshots offline: it diffs
// two snapshots, enumerates paths, and replays snapshot feeds through an
// in-memory session.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
