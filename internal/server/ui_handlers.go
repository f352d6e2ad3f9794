package server

import (
	"net/http"

	"github.com/cwbudde/conecone/internal/ui"
)

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	jobs := s.jobManager.ListJobs()

	jobItems := make([]ui.JobListItem, len(jobs))
	for i, job := range jobs {
		centers := make([]ui.MethodCenter, len(job.Progress))
		for k, p := range job.Progress {
			centers[k] = ui.MethodCenter{Method: p.Method.String(), X: p.Center.X, Y: p.Center.Y, Loss: p.Loss}
		}
		jobItems[i] = ui.JobListItem{
			ID:        job.ID,
			ParentID:  job.ParentID,
			State:     string(job.State),
			Points:    job.Points.Len(),
			Centers:   centers,
			Converged: job.Converged,
			StartTime: job.StartTime,
			EndTime:   job.EndTime,
			Error:     job.Error,
		}
	}

	if err := ui.JobList(jobItems).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}
