// Package feed reads snapshots from an NDJSON file and hands them to a
// session. Each line is one {"mode": ..., "snapshot": {...}} object.
package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

// ErrEmptyLine is returned by ParseLine for blank input.
var ErrEmptyLine = errors.New("feed: empty line")

// maxLineSize bounds a single snapshot line.
const maxLineSize = 16 << 20

// Line is one entry of a snapshot feed.
type Line struct {
	Mode     graph.MergeMode `json:"mode"`
	Snapshot graph.Snapshot  `json:"snapshot"`
}

// ParseLine decodes and validates one feed line. A missing mode means
// append.
func ParseLine(b []byte) (Line, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Line{}, ErrEmptyLine
	}
	var l Line
	if err := json.Unmarshal(b, &l); err != nil {
		return Line{}, fmt.Errorf("feed: decode line: %w", err)
	}
	mode, err := graph.ParseMergeMode(string(l.Mode))
	if err != nil {
		return Line{}, fmt.Errorf("feed: %w", err)
	}
	l.Mode = mode
	return l, nil
}

// ReadAll parses every non-blank line of r. The first malformed line stops
// the read; its 1-based line number is part of the error.
func ReadAll(r io.Reader) ([]Line, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []Line
	n := 0
	for sc.Scan() {
		n++
		l, err := ParseLine(sc.Bytes())
		if errors.Is(err, ErrEmptyLine) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, l)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("feed: read: %w", err)
	}
	return out, nil
}
