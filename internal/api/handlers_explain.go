package api

import (
	"net/http"
	"strconv"

	"github.com/vyuha/vyuha-lens/internal/explain"
	"github.com/vyuha/vyuha-lens/internal/pathfind"
	"github.com/vyuha/vyuha-lens/internal/session"
)

// ---------------------------------------------------------------------------
// POST /api/sessions/{id}/paths
// ---------------------------------------------------------------------------

type pathsRequest struct {
	IDs      []string          `json:"ids" validate:"omitempty,dive,required"`
	Strategy pathfind.Strategy `json:"strategy" validate:"omitempty,oneof=auto bfs dfs"`
	MaxDepth int               `json:"max_depth" validate:"gte=0,lte=12"`
}

func (s *Server) handlePaths(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req pathsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	res, err := sess.Paths(r.Context(), session.PathQuery{IDs: req.IDs, Strategy: req.Strategy, MaxDepth: req.MaxDepth})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// ---------------------------------------------------------------------------
// POST /api/sessions/{id}/explain  — queue an explanation of one path
// ---------------------------------------------------------------------------

type explainRequest struct {
	Nodes    []string `json:"nodes" validate:"required,min=2,dive,required"`
	Edges    []string `json:"edges" validate:"required"`
	Question string   `json:"question" validate:"max=2000"`
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED",
			"explanations are not configured (no AI provider set)")
		return
	}
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req explainRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Edges) != len(req.Nodes)-1 {
		writeError(w, http.StatusBadRequest, "INVALID_PATH", "a path needs exactly one edge slot between consecutive nodes")
		return
	}

	snap, _ := sess.Snapshot()
	sub, err := explain.BuildSubgraph(pathfind.Path{Nodes: req.Nodes, Edges: req.Edges}, snap)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jobID, err := s.jobs.Enqueue(explain.Request{SessionID: sess.ID(), Subgraph: sub, Question: req.Question})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": explain.JobStatusPending,
	})
}

// ---------------------------------------------------------------------------
// GET /api/sessions/{id}/explain?limit=N
// ---------------------------------------------------------------------------

func (s *Server) handleListExplanations(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeData(w, http.StatusOK, map[string]any{"jobs": []explain.Job{}})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, 100)
		}
	}
	writeData(w, http.StatusOK, map[string]any{"jobs": s.jobs.ListJobs(r.PathValue("id"), limit)})
}

// ---------------------------------------------------------------------------
// GET /api/explain/jobs/{job}
// ---------------------------------------------------------------------------

func (s *Server) handleExplainJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED",
			"explanations are not configured (no AI provider set)")
		return
	}
	job, err := s.jobs.GetJob(r.PathValue("job"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, job)
}
