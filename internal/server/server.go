package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/conecone/internal/fit"
	"github.com/cwbudde/conecone/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	runStore   *store.FSStore
	defaults   fit.ReconstructConfig
	addr       string
	server     *http.Server

	// jobs run under baseCtx so Shutdown can stop them
	baseCtx    context.Context
	cancelJobs context.CancelFunc
}

// NewServer creates a new HTTP server. runStore may be nil, in which case
// finished runs are kept in memory only. defaults is the configuration
// request overrides are applied to.
func NewServer(addr string, runStore *store.FSStore, defaults fit.ReconstructConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		runStore:   runStore,
		defaults:   defaults,
		addr:       addr,
		baseCtx:    ctx,
		cancelJobs: cancel,
	}
}

// Handler returns the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.cancelJobs()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// JobRequest is the body of POST /api/v1/jobs.
type JobRequest struct {
	Points fit.PointsDocument `json:"points"`
	// Guess defaults to the centroid of the points.
	Guess *fit.Center `json:"guess,omitempty"`
	// Config overrides fields of the server's default configuration.
	Config json.RawMessage `json:"config,omitempty"`
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	if len(parts) == 1 && r.Method == http.MethodDelete {
		s.handleCancelJob(w, r, jobID)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(parts) == 1 || parts[1] == "status" {
		s.handleGetJobStatus(w, r, jobID)
		return
	}
	switch parts[1] {
	case "result":
		s.handleGetResult(w, r, jobID)
	case "profile":
		s.handleGetProfile(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	points, err := req.Points.Points()
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid points: %v", err), http.StatusBadRequest)
		return
	}

	config := s.defaults
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &config); err != nil {
			http.Error(w, fmt.Sprintf("Invalid config: %v", err), http.StatusBadRequest)
			return
		}
	}
	if err := config.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	guess := points.Centroid()
	if req.Guess != nil {
		guess = *req.Guess
	}

	job := s.startJob(points, guess, config, "")
	writeJSON(w, http.StatusCreated, job)
}

// startJob registers a job and starts its worker.
func (s *Server) startJob(points *fit.Points, guess fit.Center, config fit.ReconstructConfig, parentID string) *Job {
	job := s.jobManager.CreateJob(points, guess, config)
	if parentID != "" {
		s.jobManager.UpdateJob(job.ID, func(j *Job) { j.ParentID = parentID })
		job.ParentID = parentID
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.jobManager.setCancel(job.ID, cancel)

	go func() {
		defer cancel()
		if err := runJob(ctx, s.jobManager, s.runStore, job.ID); err != nil {
			slog.Debug("Job worker exited with error", "job_id", job.ID, "error", err)
		}
	}()

	return job
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	response := map[string]interface{}{
		"id":        job.ID,
		"parentId":  job.ParentID,
		"state":     job.State,
		"points":    job.Points.Len(),
		"guess":     job.Guess,
		"config":    job.Config,
		"progress":  job.Progress,
		"converged": job.Converged,
		"elapsed":   elapsed.Seconds(),
		"startTime": job.StartTime,
		"endTime":   job.EndTime,
		"error":     job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// ResultResponse is the body of GET /api/v1/jobs/:id/result.
type ResultResponse struct {
	JobID     string `json:"jobId"`
	Converged bool   `json:"converged"`
	// Warning names the methods that ran out of budget.
	Warning string `json:"warning,omitempty"`
	*fit.ResultBundle
}

// handleGetResult handles GET /api/v1/jobs/:id/result
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := s.completedJob(w, jobID)
	if !ok {
		return
	}

	resp := ResultResponse{
		JobID:        job.ID,
		Converged:    job.Converged,
		ResultBundle: job.Bundle,
	}
	if err := job.Bundle.Err(); err != nil {
		resp.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetProfile handles GET /api/v1/jobs/:id/profile?method=
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, jobID string) {
	method, err := methodParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, ok := s.completedJob(w, jobID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, job.Bundle.Result(method).Profile)
}

// completedJob looks up a job that has results, writing the error response
// otherwise.
func (s *Server) completedJob(w http.ResponseWriter, jobID string) (*Job, bool) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return nil, false
	}
	if job.Bundle == nil {
		http.Error(w, fmt.Sprintf("No results yet (state %s)", job.State), http.StatusNotFound)
		return nil, false
	}
	return job, true
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err := s.jobManager.CancelJob(jobID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRuns handles GET /api/v1/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.runStore == nil {
		http.Error(w, "Run store disabled", http.StatusNotFound)
		return
	}

	infos, err := s.runStore.ListRuns()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleRunWithID handles /api/v1/runs/:id, POST /api/v1/runs/:id/resume
// and GET /api/v1/runs/:id/trace
func (s *Server) handleRunWithID(w http.ResponseWriter, r *http.Request) {
	if s.runStore == nil {
		http.Error(w, "Run store disabled", http.StatusNotFound)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"), "/")
	runID := parts[0]
	if runID == "" {
		http.Error(w, "Run ID required", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		record, err := s.runStore.LoadRun(runID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.runStore.DeleteRun(runID); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case len(parts) == 2 && parts[1] == "resume" && r.Method == http.MethodPost:
		s.handleResumeRun(w, r, runID)

	case len(parts) == 2 && parts[1] == "trace" && r.Method == http.MethodGet:
		s.handleRunTrace(w, r, runID)

	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleRunTrace returns a run's optimizer trace. ?method= restricts it to
// one method, ?summary=true condenses it per method.
func (s *Server) handleRunTrace(w http.ResponseWriter, r *http.Request, runID string) {
	var method string
	if r.URL.Query().Get("method") != "" {
		m, err := methodParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		method = m.String()
	}

	entries, err := store.ReadTrace(s.runStore.BaseDir(), runID, method)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if r.URL.Query().Get("summary") == "true" {
		writeJSON(w, http.StatusOK, store.SummarizeTrace(entries))
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleResumeRun starts a new job from a stored run's center.
func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request, runID string) {
	method, err := methodParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := s.runStore.LoadRun(runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	points, guess, err := ResumeInputs(record, method)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	cfg := record.Config
	cfg.Seed.Enabled = false

	job := s.startJob(points, guess, cfg, runID)
	writeJSON(w, http.StatusCreated, job)
}

// ResumeInputs returns the points of a stored run and the center method m
// reached, to restart the search from.
func ResumeInputs(record *store.RunRecord, m fit.Method) (*fit.Points, fit.Center, error) {
	if record.Bundle == nil {
		return nil, fit.Center{}, errors.New("run has no results")
	}
	points, err := record.ControlPoints()
	if err != nil {
		return nil, fit.Center{}, fmt.Errorf("stored points: %w", err)
	}
	return points, record.Bundle.Result(m).Center, nil
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
