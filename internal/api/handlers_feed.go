package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vyuha/vyuha-lens/internal/feed"
)

// ---------------------------------------------------------------------------
// POST /api/sessions/{id}/feed  — start tailing an NDJSON snapshot file
// ---------------------------------------------------------------------------

type feedStartRequest struct {
	Path      string `json:"path" validate:"required"`
	FromStart bool   `json:"from_start"`
}

func (s *Server) handleFeedStart(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req feedStartRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PATH", "invalid file path: "+err.Error())
		return
	}
	info, err := os.Stat(absPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "FILE_NOT_FOUND", "file does not exist: "+absPath)
		return
	}
	if info.IsDir() {
		writeError(w, http.StatusBadRequest, "IS_DIRECTORY", "path is a directory, not a file")
		return
	}

	handler := func(ctx context.Context, l feed.Line) error {
		_, err := sess.Reconcile(ctx, l.Snapshot, l.Mode)
		return err
	}
	// The tailer outlives this request.
	st, err := s.feeds.Start(s.baseCtx, sess.ID(), absPath, req.FromStart, handler)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

// ---------------------------------------------------------------------------
// DELETE /api/sessions/{id}/feed
// ---------------------------------------------------------------------------

func (s *Server) handleFeedStop(w http.ResponseWriter, r *http.Request) {
	st, err := s.feeds.Stop(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

// ---------------------------------------------------------------------------
// GET /api/sessions/{id}/feed
// ---------------------------------------------------------------------------

func (s *Server) handleFeedStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.feeds.Status(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, st)
}
