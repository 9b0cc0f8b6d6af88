// ===========================================================================
// scripts/generate_demo_data — Generate a knowledge-graph snapshot feed
//
// Writes an NDJSON feed of {"mode", "snapshot"} lines that grows a small
// people/companies/cities graph, with periodic subtract lines that drop
// relations. The output can be replayed with `lensctl replay` or tailed by
// a server session (POST /api/sessions/{id}/feed).
//
// Usage:
//   go run ./scripts/generate_demo_data --out ./demo.ndjson --lines 40
//
//   # Keep appending one line per second for a live feed demo:
//   go run ./scripts/generate_demo_data --out ./demo.ndjson --follow 1s
// ===========================================================================
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/vyuha/vyuha-lens/internal/feed"
	"github.com/vyuha/vyuha-lens/internal/graph"
)

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

var (
	outPath       = flag.String("out", "./demo.ndjson", "Output NDJSON feed path")
	lineCount     = flag.Int("lines", 40, "Number of feed lines to write")
	batchSize     = flag.Int("batch", 3, "New entities per append line")
	subtractEvery = flag.Int("subtract-every", 7, "Write a subtract line every N lines (0 disables)")
	seed          = flag.Int64("seed", 42, "Random seed for reproducibility")
	follow        = flag.Duration("follow", 0, "After the initial lines, keep appending one line per interval")
)

// ---------------------------------------------------------------------------
// Vocabulary
// ---------------------------------------------------------------------------

var (
	firstNames = []string{"Asha", "Bruno", "Chen", "Dara", "Emeka", "Farah", "Goran", "Hana", "Ivan", "Jun", "Kofi", "Lena"}
	companies  = []string{"Acme", "Globex", "Initech", "Umbrella", "Hooli", "Vandelay", "Stark", "Wayne"}
	cities     = []string{"Paris", "Lagos", "Osaka", "Lima", "Oslo", "Pune", "Austin", "Cairo"}
	topics     = []string{"graphs", "databases", "compilers", "robotics", "security", "distributed systems"}
)

// generator grows the demo graph one feed line at a time.
type generator struct {
	rng   *rand.Rand
	nodes []graph.Node
	edges []graph.Edge
	seq   int
}

func newGenerator(seed int64) *generator {
	g := &generator{rng: rand.New(rand.NewSource(seed))}
	for _, c := range cities {
		g.nodes = append(g.nodes, graph.NewNode("City", c, c))
	}
	for _, t := range topics {
		g.nodes = append(g.nodes, graph.NewNode("Topic", t, t))
	}
	return g
}

// first returns the seed snapshot: every city and topic.
func (g *generator) first() feed.Line {
	return feed.Line{Mode: graph.MergeReplace, Snapshot: graph.Snapshot{Nodes: g.nodes, Edges: []graph.Edge{}}}
}

func (g *generator) pick(nodeType string) (graph.Node, bool) {
	var candidates []graph.Node
	for _, n := range g.nodes {
		if n.Type == nodeType {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return graph.Node{}, false
	}
	return candidates[g.rng.Intn(len(candidates))], true
}

func (g *generator) relate(src graph.Node, rel string, dst graph.Node, out *graph.Snapshot) {
	e := graph.NewEdge(src.ID, rel, dst.ID)
	e.Attributes = map[string]any{"score": float64(50+g.rng.Intn(50)) / 100}
	out.Edges = append(out.Edges, e)
	g.edges = append(g.edges, e)
}

// appendLine adds a batch of people and companies wired into the graph.
func (g *generator) appendLine(batch int) feed.Line {
	var snap graph.Snapshot
	for i := 0; i < batch; i++ {
		g.seq++
		var n graph.Node
		if g.rng.Intn(4) == 0 {
			name := companies[g.rng.Intn(len(companies))]
			n = graph.NewNode("Company", fmt.Sprintf("%s-%d", name, g.seq), name)
			if city, ok := g.pick("City"); ok {
				g.relate(n, "located_in", city, &snap)
			}
		} else {
			name := firstNames[g.rng.Intn(len(firstNames))]
			n = graph.NewNode("Person", fmt.Sprintf("%s-%d", name, g.seq), name)
			n.Attributes = map[string]any{"description": fmt.Sprintf("%s joined the graph at step %d", name, g.seq)}
			if co, ok := g.pick("Company"); ok {
				g.relate(n, "works_at", co, &snap)
			}
			if topic, ok := g.pick("Topic"); ok {
				g.relate(n, "interested_in", topic, &snap)
			}
			if peer, ok := g.pick("Person"); ok {
				g.relate(n, "knows", peer, &snap)
			}
		}
		snap.Nodes = append(snap.Nodes, n)
		g.nodes = append(g.nodes, n)
	}
	return feed.Line{Mode: graph.MergeAppend, Snapshot: snap}
}

// subtractLine removes one random relation.
func (g *generator) subtractLine() (feed.Line, bool) {
	if len(g.edges) == 0 {
		return feed.Line{}, false
	}
	i := g.rng.Intn(len(g.edges))
	e := g.edges[i]
	g.edges = append(g.edges[:i], g.edges[i+1:]...)
	return feed.Line{Mode: graph.MergeSubtract, Snapshot: graph.Snapshot{Nodes: []graph.Node{}, Edges: []graph.Edge{e}}}, true
}

func (g *generator) next(n int) feed.Line {
	if *subtractEvery > 0 && n%*subtractEvery == 0 {
		if l, ok := g.subtractLine(); ok {
			return l
		}
	}
	return g.appendLine(*batchSize)
}

func writeLine(w *bufio.Writer, l feed.Line) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return err
	}
	return w.Flush()
}

func main() {
	flag.Parse()

	f, err := os.OpenFile(*outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("open %s: %v", *outPath, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	gen := newGenerator(*seed)
	if err := writeLine(w, gen.first()); err != nil {
		log.Fatalf("write: %v", err)
	}
	for i := 1; i < *lineCount; i++ {
		if err := writeLine(w, gen.next(i)); err != nil {
			log.Fatalf("write: %v", err)
		}
	}
	fmt.Printf("wrote %d lines (%d nodes, %d edges) to %s\n", *lineCount, len(gen.nodes), len(gen.edges), *outPath)

	if *follow <= 0 {
		return
	}
	fmt.Printf("following: one line every %s (Ctrl-C to stop)\n", *follow)
	ticker := time.NewTicker(*follow)
	defer ticker.Stop()
	for i := *lineCount; ; i++ {
		<-ticker.C
		if err := writeLine(w, gen.next(i)); err != nil {
			log.Fatalf("write: %v", err)
		}
	}
}
