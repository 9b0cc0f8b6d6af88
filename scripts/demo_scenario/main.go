// ---------------------------------------------------------------------------
// scripts/demo_scenario/main.go — Scripted exploration walkthrough
//
// Drives a running server through one exploration session: load a seed
// graph, expand it twice, select two entities and enumerate the paths
// between them, undo and redo an expansion, and optionally ask for an
// explanation of the first path.
//
// Usage:
//   go run ./scripts/demo_scenario --server http://localhost:8080
//
// Flags:
//   --server   Base URL of the server            (default: http://localhost:8080)
//   --pause    Delay between steps               (default: 1.5s)
//   --explain  Queue an explanation of a path    (default: false)
//   --keep     Leave the session open at the end (default: false)
// ---------------------------------------------------------------------------
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

// ---------------------------------------------------------------------------
// Colour helpers
// ---------------------------------------------------------------------------

var (
	dim    = color.New(color.Faint)
	title  = color.New(color.Bold, color.FgCyan)
	strong = color.New(color.Bold, color.FgWhite)
	ok     = color.New(color.FgGreen)
	warn   = color.New(color.FgYellow)
	fail   = color.New(color.FgRed, color.Bold)
)

const totalSteps = 6

func header(step int, msg string) {
	bar := strings.Repeat("━", 60)
	fmt.Println()
	fmt.Println(dim.Sprint(bar))
	fmt.Printf("  %s  %s\n", title.Sprintf("Step %d/%d", step, totalSteps), strong.Sprint(msg))
	fmt.Println(dim.Sprint(bar))
}

// ---------------------------------------------------------------------------
// API types (mirrors the backend JSON shapes)
// ---------------------------------------------------------------------------

type historyState struct {
	UndoDepth int  `json:"undo_depth"`
	RedoDepth int  `json:"redo_depth"`
	CanUndo   bool `json:"can_undo"`
	CanRedo   bool `json:"can_redo"`
}

type createResp struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type reconcileResp struct {
	Data struct {
		Generation   uint64       `json:"generation"`
		LayoutMode   string       `json:"layout_mode"`
		AddedNodes   []string     `json:"added_nodes"`
		AddedEdges   []string     `json:"added_edges"`
		RemovedNodes []string     `json:"removed_nodes"`
		RemovedEdges []string     `json:"removed_edges"`
		Recorded     bool         `json:"recorded"`
		History      historyState `json:"history"`
	} `json:"data"`
}

type pathsResp struct {
	Data struct {
		Paths []struct {
			Nodes []string `json:"nodes"`
			Edges []string `json:"edges"`
		} `json:"paths"`
		Names    []string `json:"names"`
		Strategy string   `json:"strategy"`
		Notice   string   `json:"notice"`
	} `json:"data"`
}

type replayResp struct {
	Data struct {
		Applied bool         `json:"applied"`
		Action  string       `json:"action"`
		State   historyState `json:"state"`
	} `json:"data"`
}

type viewResp struct {
	Data struct {
		Generation uint64            `json:"generation"`
		Nodes      []json.RawMessage `json:"nodes"`
		Edges      []json.RawMessage `json:"edges"`
	} `json:"data"`
}

type jobResp struct {
	Data struct {
		JobID  string `json:"job_id"`
		ID     string `json:"id"`
		Status string `json:"status"`
		Answer string `json:"answer"`
		Error  string `json:"error"`
	} `json:"data"`
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

func decodeResponse(method, url string, resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s returned %d %s: %s", method, url, resp.StatusCode, e.Code, e.Error)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func getJSON(url string, target interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	return decodeResponse(http.MethodGet, url, resp, target)
}

func postJSON(url string, body, target interface{}) error {
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	return decodeResponse(http.MethodPost, url, resp, target)
}

func deleteSession(url string) error {
	req, _ := http.NewRequest(http.MethodDelete, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(http.MethodDelete, url, resp, nil)
}

// ---------------------------------------------------------------------------
// Demo graph
// ---------------------------------------------------------------------------

var (
	asha   = graph.NewNode("Person", "asha", "Asha")
	bruno  = graph.NewNode("Person", "bruno", "Bruno")
	chen   = graph.NewNode("Person", "chen", "Chen")
	acme   = graph.NewNode("Company", "acme", "Acme")
	globex = graph.NewNode("Company", "globex", "Globex")
	paris  = graph.NewNode("City", "paris", "Paris")
	osaka  = graph.NewNode("City", "osaka", "Osaka")
)

func seedSnapshot() graph.Snapshot {
	return graph.Snapshot{
		Nodes: []graph.Node{asha, acme, paris},
		Edges: []graph.Edge{
			graph.NewEdge(asha.ID, "works_at", acme.ID),
			graph.NewEdge(acme.ID, "located_in", paris.ID),
		},
	}
}

func expansions() []graph.Snapshot {
	return []graph.Snapshot{
		{
			Nodes: []graph.Node{bruno, globex},
			Edges: []graph.Edge{
				graph.NewEdge(bruno.ID, "knows", asha.ID),
				graph.NewEdge(bruno.ID, "works_at", globex.ID),
				graph.NewEdge(globex.ID, "located_in", paris.ID),
			},
		},
		{
			Nodes: []graph.Node{chen, osaka},
			Edges: []graph.Edge{
				graph.NewEdge(chen.ID, "works_at", globex.ID),
				graph.NewEdge(chen.ID, "lives_in", osaka.ID),
				graph.NewEdge(chen.ID, "knows", bruno.ID),
			},
		},
	}
}

func printReconcile(label string, r reconcileResp) {
	d := r.Data
	recorded := dim.Sprint("not recorded")
	if d.Recorded {
		recorded = ok.Sprint("recorded")
	}
	fmt.Printf("  %-10s gen=%d layout=%s %s %s  %s  (undo=%d redo=%d)\n",
		label, d.Generation, d.LayoutMode,
		ok.Sprintf("+%dn/+%de", len(d.AddedNodes), len(d.AddedEdges)),
		fail.Sprintf("-%dn/-%de", len(d.RemovedNodes), len(d.RemovedEdges)),
		recorded, d.History.UndoDepth, d.History.RedoDepth)
}

func must(err error) {
	if err != nil {
		fmt.Println(fail.Sprintf("  ✖ %v", err))
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Base URL of the server")
	pause := flag.Duration("pause", 1500*time.Millisecond, "Delay between steps")
	doExplain := flag.Bool("explain", false, "Queue an explanation of the first path")
	keep := flag.Bool("keep", false, "Leave the session open at the end")
	flag.Parse()

	base := strings.TrimRight(*serverURL, "/")
	if err := getJSON(base+"/health", nil); err != nil {
		fmt.Println(fail.Sprintf("  ✖ server not reachable at %s: %v", base, err))
		os.Exit(1)
	}

	// ── Step 1: session ──────────────────────────────────────────────
	header(1, "Open an exploration session")
	var created createResp
	must(postJSON(base+"/api/sessions", struct{}{}, &created))
	sid := created.Data.ID
	sessURL := base + "/api/sessions/" + sid
	fmt.Printf("  session %s\n", strong.Sprint(sid))
	fmt.Println(dim.Sprintf("  watch live: curl -N '%s/api/events?session=%s'", base, sid))
	time.Sleep(*pause)

	// ── Step 2: seed and expand ──────────────────────────────────────
	header(2, "Load a seed graph and expand it")
	var rr reconcileResp
	must(postJSON(sessURL+"/snapshot", map[string]any{"mode": graph.MergeAppend, "snapshot": seedSnapshot()}, &rr))
	printReconcile("seed", rr)
	for i, snap := range expansions() {
		time.Sleep(*pause)
		must(postJSON(sessURL+"/snapshot", map[string]any{"mode": graph.MergeAppend, "snapshot": snap}, &rr))
		printReconcile(fmt.Sprintf("expand #%d", i+1), rr)
	}
	time.Sleep(*pause)

	// ── Step 3: paths ────────────────────────────────────────────────
	header(3, "Select Asha and Osaka, enumerate paths")
	must(postJSON(sessURL+"/select", map[string]any{"kind": graph.SelectNodes, "ids": []string{asha.ID, osaka.ID}}, nil))
	var pr pathsResp
	must(postJSON(sessURL+"/paths", map[string]any{"max_depth": 4}, &pr))
	fmt.Printf("  strategy %s, %d path(s)\n", title.Sprint(pr.Data.Strategy), len(pr.Data.Paths))
	for i, name := range pr.Data.Names {
		fmt.Printf("  %2d. %s\n", i+1, name)
	}
	if pr.Data.Notice != "" {
		fmt.Println(warn.Sprint("  " + pr.Data.Notice))
	}
	time.Sleep(*pause)

	// ── Step 4: undo / redo ──────────────────────────────────────────
	header(4, "Undo the last expansion, then redo it")
	var rp replayResp
	must(postJSON(sessURL+"/undo", struct{}{}, &rp))
	fmt.Printf("  undo  applied=%v action=%s (undo=%d redo=%d)\n", rp.Data.Applied, rp.Data.Action, rp.Data.State.UndoDepth, rp.Data.State.RedoDepth)
	var view viewResp
	must(getJSON(sessURL, &view))
	fmt.Printf("  canvas now %d nodes, %d edges\n", len(view.Data.Nodes), len(view.Data.Edges))
	time.Sleep(*pause)
	must(postJSON(sessURL+"/redo", struct{}{}, &rp))
	fmt.Printf("  redo  applied=%v action=%s (undo=%d redo=%d)\n", rp.Data.Applied, rp.Data.Action, rp.Data.State.UndoDepth, rp.Data.State.RedoDepth)
	must(getJSON(sessURL, &view))
	fmt.Printf("  canvas back to %d nodes, %d edges\n", len(view.Data.Nodes), len(view.Data.Edges))
	time.Sleep(*pause)

	// ── Step 5: explain ──────────────────────────────────────────────
	header(5, "Explain a path")
	switch {
	case !*doExplain:
		fmt.Println(dim.Sprint("  skipped (pass --explain to queue one)"))
	case len(pr.Data.Paths) == 0:
		fmt.Println(warn.Sprint("  no path to explain"))
	default:
		p := pr.Data.Paths[0]
		var jr jobResp
		err := postJSON(sessURL+"/explain", map[string]any{
			"nodes":    p.Nodes,
			"edges":    p.Edges,
			"question": "How is Asha connected to Osaka?",
		}, &jr)
		if err != nil {
			fmt.Println(warn.Sprintf("  %v", err))
			break
		}
		jobID := jr.Data.JobID
		fmt.Printf("  job %s queued\n", strong.Sprint(jobID))
		deadline := time.Now().Add(2 * time.Minute)
		for time.Now().Before(deadline) {
			time.Sleep(time.Second)
			if err := getJSON(base+"/api/explain/jobs/"+jobID, &jr); err != nil {
				fmt.Println(warn.Sprintf("  %v", err))
				break
			}
			if jr.Data.Status == "completed" || jr.Data.Status == "failed" {
				break
			}
			fmt.Print(dim.Sprint("."))
		}
		fmt.Println()
		switch jr.Data.Status {
		case "completed":
			fmt.Println(ok.Sprint("  answer:"))
			fmt.Println("  " + strings.ReplaceAll(jr.Data.Answer, "\n", "\n  "))
		case "failed":
			fmt.Println(fail.Sprintf("  failed: %s", jr.Data.Error))
		default:
			fmt.Println(warn.Sprintf("  still %s after 2m", jr.Data.Status))
		}
	}
	time.Sleep(*pause)

	// ── Step 6: wrap up ──────────────────────────────────────────────
	header(6, "Wrap up")
	if *keep {
		fmt.Printf("  session %s left open\n", strong.Sprint(sid))
		return
	}
	must(deleteSession(sessURL))
	fmt.Println(ok.Sprint("  ✔ session closed"))
}
