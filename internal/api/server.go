package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/vyuha/vyuha-lens/internal/explain"
	"github.com/vyuha/vyuha-lens/internal/feed"
	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/history"
	"github.com/vyuha/vyuha-lens/internal/metrics"
	"github.com/vyuha/vyuha-lens/internal/session"
)

// maxBodyBytes bounds request bodies; snapshots can be large.
const maxBodyBytes = 32 << 20

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Options configures the HTTP layer.
type Options struct {
	// RatePerSecond and Burst configure the limiter shared by the snapshot
	// and path endpoints. Zero disables limiting.
	RatePerSecond float64
	Burst         int
	// StaticDir, when set, is served as a single-page app on "/".
	StaticDir string
	// AllowedOrigins lists CORS origins. Any http://localhost origin is
	// always allowed.
	AllowedOrigins []string
}

// Server is the HTTP API layer for VYUHA Lens.
type Server struct {
	sessions *session.Manager
	jobs     *explain.JobQueue
	feeds    *feed.Registry
	sse      *SSEBroadcaster
	metrics  *metrics.Collector
	opts     Options

	mux      *http.ServeMux
	server   *http.Server
	validate *validator.Validate
	limiter  *rate.Limiter

	// baseCtx outlives requests; feed tailers run under it.
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewServer creates a new Server. jobs may be nil when no AI provider is
// configured; sse and m may be nil.
func NewServer(sessions *session.Manager, jobs *explain.JobQueue, feeds *feed.Registry, sse *SSEBroadcaster, m *metrics.Collector, opts Options) *Server {
	if sse == nil {
		sse = NewSSEBroadcaster()
	}
	if feeds == nil {
		feeds = feed.NewRegistry(feed.TailerOptions{}, m)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		sessions:   sessions,
		jobs:       jobs,
		feeds:      feeds,
		sse:        sse,
		metrics:    m,
		opts:       opts,
		mux:        http.NewServeMux(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RatePerSecond)
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return s
}

// RegisterRoutes wires up every API endpoint.
func (s *Server) RegisterRoutes() {
	// -- Sessions ---------------------------------------------------------
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	// -- Data (rate-limited) ----------------------------------------------
	s.mux.HandleFunc("POST /api/sessions/{id}/snapshot", s.withRateLimit(s.handleSnapshot))
	s.mux.HandleFunc("PUT /api/sessions/{id}/data", s.withRateLimit(s.handleChangeData))
	s.mux.HandleFunc("POST /api/sessions/{id}/render", s.handleRender)

	// -- History ----------------------------------------------------------
	s.mux.HandleFunc("POST /api/sessions/{id}/undo", s.handleUndo)
	s.mux.HandleFunc("POST /api/sessions/{id}/redo", s.handleRedo)
	s.mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)

	// -- Interactions -----------------------------------------------------
	s.mux.HandleFunc("POST /api/sessions/{id}/select", s.handleSelect)
	s.mux.HandleFunc("POST /api/sessions/{id}/visibility", s.handleVisibility)
	s.mux.HandleFunc("POST /api/sessions/{id}/delete", s.handleDeleteElements)
	s.mux.HandleFunc("POST /api/sessions/{id}/positions", s.handlePositions)
	s.mux.HandleFunc("POST /api/sessions/{id}/layout", s.handleLayout)
	s.mux.HandleFunc("POST /api/sessions/{id}/combos", s.handleAddCombo)
	s.mux.HandleFunc("POST /api/sessions/{id}/combos/tree", s.handleComboTree)

	// -- Paths and explanations -------------------------------------------
	s.mux.HandleFunc("POST /api/sessions/{id}/paths", s.withRateLimit(s.handlePaths))
	s.mux.HandleFunc("POST /api/sessions/{id}/explain", s.handleExplain)
	s.mux.HandleFunc("GET /api/sessions/{id}/explain", s.handleListExplanations)
	s.mux.HandleFunc("GET /api/explain/jobs/{job}", s.handleExplainJob)

	// -- Snapshot feed ----------------------------------------------------
	s.mux.HandleFunc("POST /api/sessions/{id}/feed", s.handleFeedStart)
	s.mux.HandleFunc("DELETE /api/sessions/{id}/feed", s.handleFeedStop)
	s.mux.HandleFunc("GET /api/sessions/{id}/feed", s.handleFeedStatus)

	// -- SSE event stream -------------------------------------------------
	s.mux.HandleFunc("GET /api/events", s.handleSSE)

	// -- Health and metrics -----------------------------------------------
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.serveFrontend()
}

// serveFrontend registers a static file handler for a renderer build
// directory. Unknown paths fall back to index.html.
func (s *Server) serveFrontend() {
	if s.opts.StaticDir == "" {
		return
	}
	info, err := os.Stat(s.opts.StaticDir)
	if err != nil || !info.IsDir() {
		slog.Warn("static dir not found, renderer not served", "dir", s.opts.StaticDir)
		return
	}

	absDir, _ := filepath.Abs(s.opts.StaticDir)
	slog.Info("serving renderer", "dir", absDir)

	distFS := os.DirFS(s.opts.StaticDir)
	fileServer := http.FileServerFS(distFS)

	s.mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := fs.Stat(distFS, path); err == nil && !f.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}

// Handler returns the fully-wrapped http.Handler (middleware chain + mux).
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = recoveryMiddleware(h)
	h = s.loggingMiddleware(h)
	h = corsMiddleware(s.opts.AllowedOrigins, h)
	return h
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE streams stay open.
		IdleTimeout: 60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops feed tailers and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.feeds.StopAll()
	s.baseCancel()

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Publisher returns the SSE hub as an event sink for sessions and jobs.
func (s *Server) Publisher() *SSEBroadcaster { return s.sse }

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     "vyuha-lens",
		"sessions":    len(s.sessions.List()),
		"sse_clients": s.sse.ClientCount(),
		"ai_enabled":  s.jobs != nil,
	})
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

// writeJSON writes an arbitrary value as JSON with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeData wraps v in the {"data": ...} envelope.
func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, map[string]any{"data": v})
}

// writeError writes a standardised JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeBody decodes a JSON body into dst and validates it. On failure it
// writes the error response and returns false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", validationMessage(err))
		return false
	}
	return true
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// writeDomainError maps package sentinel errors to HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
	case errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusGone, "SESSION_CLOSED", err.Error())
	case errors.Is(err, session.ErrReconcileInFlight):
		writeError(w, http.StatusConflict, "RECONCILE_IN_FLIGHT", err.Error())
	case errors.Is(err, session.ErrSelectionTooSmall):
		writeError(w, http.StatusBadRequest, "SELECTION_TOO_SMALL", err.Error())
	case errors.Is(err, session.ErrNothingToChange):
		writeError(w, http.StatusUnprocessableEntity, "NOTHING_TO_CHANGE", err.Error())
	case errors.Is(err, session.ErrEmptyPayload):
		writeError(w, http.StatusBadRequest, "EMPTY_PAYLOAD", err.Error())
	case errors.Is(err, graph.ErrUnknownMergeMode):
		writeError(w, http.StatusBadRequest, "INVALID_MODE", err.Error())
	case errors.Is(err, graph.ErrNodeNotFound), errors.Is(err, graph.ErrEdgeNotFound):
		writeError(w, http.StatusNotFound, "ELEMENT_NOT_FOUND", err.Error())
	case errors.Is(err, graph.ErrComboNotFound):
		writeError(w, http.StatusNotFound, "COMBO_NOT_FOUND", err.Error())
	case errors.Is(err, history.ErrNotDataAction), errors.Is(err, history.ErrUnknownAction):
		writeError(w, http.StatusInternalServerError, "HISTORY_CORRUPT", err.Error())
	case errors.Is(err, explain.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "EXPLAIN_QUEUE_FULL", err.Error())
	case errors.Is(err, explain.ErrQueueClosed), errors.Is(err, explain.ErrNoProvider):
		writeError(w, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED", err.Error())
	case errors.Is(err, explain.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", err.Error())
	case errors.Is(err, feed.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "FEED_RUNNING", err.Error())
	case errors.Is(err, feed.ErrNotRunning):
		writeError(w, http.StatusNotFound, "FEED_NOT_RUNNING", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "TIMEOUT", err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// corsMiddleware allows any localhost origin plus the configured ones.
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	extra := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		extra[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "http://localhost:5173"
		}

		if strings.HasPrefix(origin, "http://localhost:") || extra[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseRecorder captures the status code written by downstream handlers.
// It also implements http.Flusher so SSE streaming works through the
// logging middleware.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher by delegating to the underlying writer.
func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// loggingMiddleware logs method, path, duration and status code, and
// records them per route pattern.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		d := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(r.Method, route, rec.statusCode, d)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode,
			"duration_ms", d.Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware catches panics and returns a 500 response.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				slog.Error("panic recovered",
					"error", err,
					"stack", string(stack),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, `{"error":"internal server error"}`)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withRateLimit wraps a handler with the server's token-bucket limiter.
// Returns 429 when the limiter is exhausted.
// NOTE: this is a per-server limiter (not per-IP).
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%g", float64(s.limiter.Limit())))
			w.Header().Set("X-RateLimit-Remaining",
				fmt.Sprintf("%d", int(s.limiter.Tokens())))
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate limit exceeded","retry_after_ms":1000}`)
			slog.Warn("rate limit exceeded",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			return
		}
		next(w, r)
	}
}
