package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SSE Types
// ---------------------------------------------------------------------------

const (
	sseBuffer         = 64
	sseHeartbeat      = 30 * time.Second
	sseRetryMillis    = 3000
	sseHeartbeatEvent = "heartbeat"
)

// SSEEvent is a single server-sent event. Seq is assigned by the
// broadcaster and written as the frame id.
type SSEEvent struct {
	Seq   uint64 `json:"-"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// sessionScoped is implemented by event payloads that belong to one
// session.
type sessionScoped interface{ EventSessionID() string }

// forSession reports whether evt concerns sessionID. Events without a
// session id (heartbeats, job events keyed by job) always pass.
func forSession(evt SSEEvent, sessionID string) bool {
	if sc, ok := evt.Data.(sessionScoped); ok {
		return sc.EventSessionID() == sessionID
	}
	return true
}

type sseClient struct {
	ch      chan SSEEvent
	session string // empty: every session
	dropped atomic.Int64
}

// ---------------------------------------------------------------------------
// SSEBroadcaster
// ---------------------------------------------------------------------------

// SSEBroadcaster fans events out to connected stream clients. A client may
// ask for a single session's events; the filter runs at publish time so
// unrelated events never occupy its buffer.
type SSEBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]*sseClient
	seq     atomic.Uint64
}

// NewSSEBroadcaster creates a ready-to-use broadcaster.
func NewSSEBroadcaster() *SSEBroadcaster {
	return &SSEBroadcaster{clients: make(map[string]*sseClient)}
}

// Subscribe registers a client and returns its event channel. sessionID
// limits delivery to that session's events; pass "" for all of them.
func (b *SSEBroadcaster) Subscribe(clientID, sessionID string) <-chan SSEEvent {
	c := &sseClient{ch: make(chan SSEEvent, sseBuffer), session: sessionID}

	b.mu.Lock()
	b.clients[clientID] = c
	n := len(b.clients)
	b.mu.Unlock()

	slog.Debug("sse: client subscribed", "client", clientID, "session", sessionID, "clients", n)
	return c.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *SSEBroadcaster) Unsubscribe(clientID string) {
	b.mu.Lock()
	c, ok := b.clients[clientID]
	if ok {
		close(c.ch)
		delete(b.clients, clientID)
	}
	n := len(b.clients)
	b.mu.Unlock()

	if ok {
		slog.Debug("sse: client unsubscribed", "client", clientID, "dropped", c.dropped.Load(), "clients", n)
	}
}

// Publish broadcasts a named event. A client whose buffer is full misses
// the event; it sees the gap in the frame ids.
func (b *SSEBroadcaster) Publish(event string, data any) {
	evt := SSEEvent{Seq: b.seq.Add(1), Event: event, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, c := range b.clients {
		if c.session != "" && !forSession(evt, c.session) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			if c.dropped.Add(1) == 1 {
				slog.Warn("sse: client is falling behind, dropping events", "client", id, "event", event)
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *SSEBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ---------------------------------------------------------------------------
// HTTP handler — GET /api/events[?session=ID]
// ---------------------------------------------------------------------------

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SSE_NOT_SUPPORTED",
			"streaming unsupported")
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID != "" {
		if _, err := s.sessions.Get(sessionID); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: %d\n\n", sseRetryMillis)
	flusher.Flush()

	clientID := uuid.NewString()
	ch := s.sse.Subscribe(clientID, sessionID)
	defer s.sse.Unsubscribe(clientID)

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, flusher, evt); err != nil {
				return
			}
		case t := <-heartbeat.C:
			hb := SSEEvent{Event: sseHeartbeatEvent, Data: map[string]int64{"t": t.Unix()}}
			if err := writeSSEEvent(w, flusher, hb); err != nil {
				return
			}
		}
	}
}

// writeSSEEvent formats and writes a single SSE frame. Heartbeats carry
// no id so they do not disturb Last-Event-ID.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, evt SSEEvent) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return err
	}
	if evt.Seq > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", evt.Seq); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
