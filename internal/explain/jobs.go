package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyuha/vyuha-lens/internal/ai"
	"github.com/vyuha/vyuha-lens/internal/metrics"
	"github.com/vyuha/vyuha-lens/internal/storage"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Publisher pushes job events to connected clients.
type Publisher interface {
	Publish(event string, data any)
}

// Store keeps finished explanations.
type Store interface {
	SaveExplanation(ctx context.Context, e storage.Explanation) error
}

// Event names.
const (
	EventStarted   = "explain:started"
	EventDelta     = "explain:delta"
	EventCompleted = "explain:completed"
	EventFailed    = "explain:failed"
)

var (
	ErrQueueFull   = errors.New("explain: queue full")
	ErrQueueClosed = errors.New("explain: queue closed")
	ErrNoProvider  = errors.New("explain: no ai provider configured")
	ErrJobNotFound = errors.New("explain: job not found")
)

// ---------------------------------------------------------------------------
// Job types
// ---------------------------------------------------------------------------

// JobStatus tracks the lifecycle of an explanation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Request asks for an explanation of one path.
type Request struct {
	SessionID string   `json:"session_id"`
	Subgraph  Subgraph `json:"subgraph"`
	Question  string   `json:"question,omitempty"`
}

// Job is a queued or finished explanation.
type Job struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Path      []string   `json:"path"`
	Question  string     `json:"question,omitempty"`
	Status    JobStatus  `json:"status"`
	Provider  string     `json:"provider,omitempty"`
	Answer    string     `json:"answer,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	DoneAt    *time.Time `json:"done_at,omitempty"`

	subgraph Subgraph
}

// ---------------------------------------------------------------------------
// JobQueue
// ---------------------------------------------------------------------------

// QueueOptions configures a JobQueue.
type QueueOptions struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	// Retention is how long finished jobs stay queryable.
	Retention time.Duration
}

func (o QueueOptions) withDefaults() QueueOptions {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	if o.Retention <= 0 {
		o.Retention = time.Hour
	}
	return o
}

// JobQueue runs explanation jobs on a fixed pool of workers.
type JobQueue struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	queue    chan string
	provider ai.Provider
	store    Store
	pub      Publisher
	metrics  *metrics.Collector
	opts     QueueOptions

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    bool
}

// NewJobQueue starts the workers. provider may be nil, in which case every
// Enqueue fails with ErrNoProvider. store, pub and m may be nil.
func NewJobQueue(provider ai.Provider, store Store, pub Publisher, m *metrics.Collector, opts QueueOptions) *JobQueue {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &JobQueue{
		jobs:     make(map[string]*Job),
		queue:    make(chan string, opts.QueueSize),
		provider: provider,
		store:    store,
		pub:      pub,
		metrics:  m,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(1)
	go q.evictExpiredJobs()

	slog.Info("explain job queue started", "workers", opts.Workers)
	return q
}

// Enqueue registers a job and returns its id immediately.
func (q *JobQueue) Enqueue(req Request) (string, error) {
	if q.provider == nil {
		return "", ErrNoProvider
	}
	path := make([]string, len(req.Subgraph.Nodes))
	for i, n := range req.Subgraph.Nodes {
		path[i] = n.ID
	}
	job := &Job{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Path:      path,
		Question:  req.Question,
		Status:    JobStatusPending,
		Provider:  q.provider.Name(),
		CreatedAt: time.Now().UTC(),
		subgraph:  req.Subgraph,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	select {
	case q.queue <- job.ID:
		q.jobs[job.ID] = job
	default:
		q.metrics.ObserveExplainJob("rejected")
		return "", ErrQueueFull
	}
	q.metrics.ObserveExplainJob(string(JobStatusPending))
	slog.Debug("explain job enqueued", "job_id", job.ID, "session", job.SessionID)
	return job.ID, nil
}

// GetJob returns a copy of the job.
func (q *JobQueue) GetJob(id string) (Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.copy(), nil
}

// ListJobs returns jobs newest first, optionally filtered by session.
func (q *JobQueue) ListJobs(sessionID string, limit int) []Job {
	q.mu.RLock()
	all := make([]Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		if sessionID != "" && j.SessionID != sessionID {
			continue
		}
		all = append(all, j.copy())
	}
	q.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Close stops the workers and waits for them. Running jobs are cancelled.
// Safe to call multiple times.
func (q *JobQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.queue)
		q.mu.Unlock()
		q.cancel()
		q.wg.Wait()
		slog.Info("explain job queue shut down")
	})
}

func (j *Job) copy() Job {
	c := *j
	c.Path = append([]string(nil), j.Path...)
	return c
}

// ---------------------------------------------------------------------------
// Workers
// ---------------------------------------------------------------------------

func (q *JobQueue) worker(id int) {
	defer q.wg.Done()
	for jobID := range q.queue {
		if q.ctx.Err() != nil {
			q.finish(jobID, "", q.ctx.Err())
			continue
		}
		q.process(jobID, id)
	}
}

func (q *JobQueue) process(jobID string, workerID int) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	sub, question, sessionID := job.subgraph, job.Question, job.SessionID
	q.mu.Unlock()

	slog.Debug("explain job processing", "worker", workerID, "job_id", jobID)
	q.metrics.ObserveExplainJob(string(JobStatusRunning))
	q.publish(EventStarted, map[string]any{"job_id": jobID, "session_id": sessionID})

	ctx, cancel := context.WithTimeout(q.ctx, q.opts.Timeout)
	defer cancel()
	answer, err := q.run(ctx, jobID, sub, question)
	if err == nil && q.store != nil {
		err = q.store.SaveExplanation(ctx, storage.Explanation{
			ID:        jobID,
			SessionID: sessionID,
			Path:      pathIDs(sub),
			Provider:  q.provider.Name(),
			Answer:    answer,
		})
	}
	q.finish(jobID, answer, err)
}

func (q *JobQueue) run(ctx context.Context, jobID string, sub Subgraph, question string) (string, error) {
	msgs, err := PathPrompt(sub, question)
	if err != nil {
		return "", err
	}
	stream, err := q.provider.StreamGenerate(ctx, msgs, ai.DefaultGenerateOptions())
	if err != nil {
		return "", err
	}
	return ai.Collect(stream, func(chunk string) {
		q.publish(EventDelta, map[string]any{"job_id": jobID, "content": chunk})
	})
}

func (q *JobQueue) finish(jobID, answer string, err error) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return
	}
	doneAt := time.Now().UTC()
	job.DoneAt = &doneAt
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = JobStatusCompleted
		job.Answer = answer
	}
	snapshot := job.copy()
	q.mu.Unlock()

	q.metrics.ObserveExplainJob(string(snapshot.Status))
	if err != nil {
		slog.Error("explain job failed", "job_id", jobID, "error", err)
		q.publish(EventFailed, map[string]any{"job_id": jobID, "session_id": snapshot.SessionID, "error": snapshot.Error})
		return
	}
	slog.Info("explain job complete", "job_id", jobID, "session", snapshot.SessionID)
	q.publish(EventCompleted, snapshot)
}

// evictExpiredJobs drops finished jobs older than the retention window.
func (q *JobQueue) evictExpiredJobs() {
	defer q.wg.Done()
	interval := q.opts.Retention / 4
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.evictBefore(time.Now().UTC().Add(-q.opts.Retention))
		}
	}
}

func (q *JobQueue) evictBefore(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	evicted := 0
	for id, job := range q.jobs {
		if job.DoneAt != nil && job.DoneAt.Before(cutoff) {
			delete(q.jobs, id)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("explain job eviction", "evicted", evicted, "remaining", len(q.jobs))
	}
	return evicted
}

func (q *JobQueue) publish(event string, data any) {
	if q.pub == nil {
		return
	}
	q.pub.Publish(event, data)
}

func pathIDs(sub Subgraph) []string {
	out := make([]string, len(sub.Nodes))
	for i, n := range sub.Nodes {
		out[i] = n.ID
	}
	return out
}
