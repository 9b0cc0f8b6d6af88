package explain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/vyuha-lens/internal/ai"
	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/pathfind"
	"github.com/vyuha/vyuha-lens/internal/storage"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeProvider struct {
	chunks []string
	err    error
	block  chan struct{}

	mu       sync.Mutex
	messages [][]ai.Message
}

func (f *fakeProvider) Generate(ctx context.Context, msgs []ai.Message, _ ai.GenerateOptions) (*ai.Message, error) {
	return &ai.Message{Role: ai.RoleAssistant, Content: strings.Join(f.chunks, "")}, nil
}

func (f *fakeProvider) StreamGenerate(ctx context.Context, msgs []ai.Message, _ ai.GenerateOptions) (<-chan ai.StreamDelta, error) {
	f.mu.Lock()
	f.messages = append(f.messages, msgs)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan ai.StreamDelta, len(f.chunks)+1)
	go func() {
		defer close(ch)
		if f.block != nil {
			select {
			case <-f.block:
			case <-ctx.Done():
				ch <- ai.StreamDelta{Done: true, Err: ctx.Err()}
				return
			}
		}
		for _, c := range f.chunks {
			ch <- ai.StreamDelta{Content: c}
		}
		ch <- ai.StreamDelta{Done: true}
	}()
	return ch, nil
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Close() error { return nil }

type memStore struct {
	mu    sync.Mutex
	saved []storage.Explanation
}

func (m *memStore) SaveExplanation(_ context.Context, e storage.Explanation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, e)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) Publish(event string, _ any) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func pathSnapshot() (graph.Snapshot, pathfind.Path) {
	a := graph.NewNode("Person", "alice", "Alice")
	a.Attributes = map[string]any{"description": "An engineer", "x_internal": 1}
	b := graph.NewNode("Company", "acme", "Acme")
	c := graph.NewNode("City", "paris", "")
	ab := graph.NewEdge(a.ID, "works_at", b.ID)
	ab.Attributes = map[string]any{"description": "since 2020", "score": 0.9}
	bc := graph.NewEdge(b.ID, "located_in", c.ID)

	snap := graph.Snapshot{Nodes: []graph.Node{a.WithPosition(1, 2), b, c}, Edges: []graph.Edge{ab, bc}}
	p := pathfind.Path{Nodes: []string{a.ID, b.ID, c.ID}, Edges: []string{ab.ID, bc.ID}}
	return snap, p
}

// ---------------------------------------------------------------------------
// Subgraph and prompt
// ---------------------------------------------------------------------------

func TestBuildSubgraph_CleansElements(t *testing.T) {
	snap, p := pathSnapshot()
	sub, err := BuildSubgraph(p, snap)
	require.NoError(t, err)

	require.Len(t, sub.Nodes, 3)
	assert.Equal(t, SubgraphNode{ID: "Person::alice", Name: "Alice", Type: "Person", Description: "An engineer"}, sub.Nodes[0])
	assert.Equal(t, "paris", sub.Nodes[2].Name)

	require.Len(t, sub.Edges, 2)
	assert.Equal(t, SubgraphEdge{
		Source:       "Person::alice",
		Target:       "Company::acme",
		RelationType: "works_at",
		Description:  "since 2020",
		Score:        0.9,
	}, sub.Edges[0])
}

func TestBuildSubgraph_SkipsPlaceholderEdges(t *testing.T) {
	snap, p := pathSnapshot()
	p.Edges[1] = ""
	sub, err := BuildSubgraph(p, snap)
	require.NoError(t, err)
	assert.Len(t, sub.Edges, 1)
}

func TestBuildSubgraph_MissingElements(t *testing.T) {
	snap, p := pathSnapshot()

	bad := p
	bad.Nodes = append([]string{"ghost"}, p.Nodes[1:]...)
	_, err := BuildSubgraph(bad, snap)
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)

	bad = pathfind.Path{Nodes: p.Nodes, Edges: []string{"nope", p.Edges[1]}}
	_, err = BuildSubgraph(bad, snap)
	assert.ErrorIs(t, err, graph.ErrEdgeNotFound)
}

func TestPathPrompt(t *testing.T) {
	snap, p := pathSnapshot()
	sub, err := BuildSubgraph(p, snap)
	require.NoError(t, err)

	msgs, err := PathPrompt(sub, "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, ai.RoleSystem, msgs[0].Role)

	user := msgs[1].Content
	assert.Contains(t, user, "Path: Alice -> Acme -> paris")
	assert.Contains(t, user, "- Alice --works_at--> Acme (score=0.90): since 2020")
	assert.Contains(t, user, `"relation_type":"located_in"`)
	assert.Contains(t, user, DefaultQuestion)
	assert.NotContains(t, user, "x_internal")
}

// ---------------------------------------------------------------------------
// Job queue
// ---------------------------------------------------------------------------

func waitForStatus(t *testing.T, q *JobQueue, id string, want JobStatus) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var err error
		job, err = q.GetJob(id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestJobQueue_CompletesAndStores(t *testing.T) {
	snap, p := pathSnapshot()
	sub, err := BuildSubgraph(p, snap)
	require.NoError(t, err)

	provider := &fakeProvider{chunks: []string{"Alice ", "works at Acme."}}
	store := &memStore{}
	events := &eventLog{}
	q := NewJobQueue(provider, store, events, nil, QueueOptions{Workers: 1})
	defer q.Close()

	id, err := q.Enqueue(Request{SessionID: "s1", Subgraph: sub})
	require.NoError(t, err)

	job := waitForStatus(t, q, id, JobStatusCompleted)
	assert.Equal(t, "Alice works at Acme.", job.Answer)
	assert.Equal(t, "fake", job.Provider)
	assert.Equal(t, []string{"Person::alice", "Company::acme", "City::paris"}, job.Path)

	store.mu.Lock()
	require.Len(t, store.saved, 1)
	assert.Equal(t, id, store.saved[0].ID)
	assert.Equal(t, "s1", store.saved[0].SessionID)
	store.mu.Unlock()

	assert.True(t, events.has(EventStarted))
	assert.True(t, events.has(EventDelta))
	assert.True(t, events.has(EventCompleted))
	assert.Len(t, q.ListJobs("s1", 0), 1)
	assert.Empty(t, q.ListJobs("other", 0))
}

func TestJobQueue_ProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("throttled")}
	events := &eventLog{}
	q := NewJobQueue(provider, nil, events, nil, QueueOptions{Workers: 1})
	defer q.Close()

	id, err := q.Enqueue(Request{SessionID: "s1"})
	require.NoError(t, err)
	job := waitForStatus(t, q, id, JobStatusFailed)
	assert.Contains(t, job.Error, "throttled")
	assert.True(t, events.has(EventFailed))
}

func TestJobQueue_Full(t *testing.T) {
	provider := &fakeProvider{block: make(chan struct{})}
	q := NewJobQueue(provider, nil, nil, nil, QueueOptions{Workers: 1, QueueSize: 1})
	defer func() {
		close(provider.block)
		q.Close()
	}()

	first, err := q.Enqueue(Request{})
	require.NoError(t, err)
	waitForStatus(t, q, first, JobStatusRunning)

	_, err = q.Enqueue(Request{})
	require.NoError(t, err)
	_, err = q.Enqueue(Request{})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestJobQueue_NoProviderAndClosed(t *testing.T) {
	q := NewJobQueue(nil, nil, nil, nil, QueueOptions{})
	_, err := q.Enqueue(Request{})
	assert.ErrorIs(t, err, ErrNoProvider)
	q.Close()

	q = NewJobQueue(&fakeProvider{}, nil, nil, nil, QueueOptions{})
	q.Close()
	q.Close()
	_, err = q.Enqueue(Request{})
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.GetJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobQueue_EvictsFinishedJobs(t *testing.T) {
	q := NewJobQueue(&fakeProvider{chunks: []string{"ok"}}, nil, nil, nil, QueueOptions{Workers: 1})
	defer q.Close()

	id, err := q.Enqueue(Request{})
	require.NoError(t, err)
	waitForStatus(t, q, id, JobStatusCompleted)

	assert.Equal(t, 0, q.evictBefore(time.Now().Add(-time.Minute)))
	assert.Equal(t, 1, q.evictBefore(time.Now().Add(time.Minute)))
	_, err = q.GetJob(id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
