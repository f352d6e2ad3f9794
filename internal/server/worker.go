package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/conecone/internal/fit"
	"github.com/cwbudde/conecone/internal/opt"
	"github.com/cwbudde/conecone/internal/store"
)

// progressInterval throttles SSE progress events.
var progressInterval = 500 * time.Millisecond

// runJob executes a reconstruction job in the background.
// If runStore is not nil, the finished run and its per-iteration trace are
// persisted under the job's ID.
func runJob(ctx context.Context, jm *JobManager, runStore *store.FSStore, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// A job cancelled before its worker started stays cancelled.
	if err := ctx.Err(); err != nil {
		markJobCancelled(jm, jobID)
		return err
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "points", job.Points.Len(), "guess_x", job.Guess.X, "guess_y", job.Guess.Y)

	var trace *store.TraceWriter
	if runStore != nil {
		trace, err = store.NewTraceWriter(runStore.BaseDir(), jobID, false)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
			trace = nil
		}
	}

	progress := func(m fit.Method, p opt.Progress) {
		c := fit.CenterFromVector(p.X)
		jm.UpdateJob(jobID, func(j *Job) {
			for i := range j.Progress {
				if j.Progress[i].Method == m {
					j.Progress[i] = MethodProgress{
						Method:      m,
						Iteration:   p.Iteration,
						Evaluations: p.Evaluations,
						Center:      c,
						Loss:        p.F,
					}
				}
			}
		})
		if trace != nil {
			if err := trace.Write(store.NewTraceEntry(m, p)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
	}

	start := time.Now()
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	bundle, err := fit.Reconstruct(ctx, job.Points, job.Guess, job.Config, progress)
	close(progressDone)

	if trace != nil {
		if cerr := trace.Close(); cerr != nil {
			slog.Warn("Failed to close trace", "job_id", jobID, "error", cerr)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			markJobCancelled(jm, jobID)
		} else {
			markJobFailed(jm, jobID, err)
		}
		return err
	}

	converged := bundle.Err() == nil

	// Persist before the state turns terminal so clients that saw
	// "completed" can load the run.
	if runStore != nil {
		if err := saveRun(runStore, job, bundle); err != nil {
			slog.Error("Failed to save run", "job_id", jobID, "error", err)
		}
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Bundle = bundle
		j.Converged = converged
		j.EndTime = &endTime
		for i := range j.Progress {
			res := bundle.Result(j.Progress[i].Method)
			j.Progress[i].Iteration = res.Iterations
			j.Progress[i].Evaluations = res.Evaluations
			j.Progress[i].Center = res.Center
			j.Progress[i].Loss = res.Loss
		}
	})
	if err != nil {
		return err
	}

	if nce := bundle.Err(); nce != nil {
		slog.Warn("Job finished without convergence", "job_id", jobID, "error", nce)
	}
	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", time.Since(start),
		"regression_x", bundle.Regression.Center.X,
		"regression_y", bundle.Regression.Center.Y,
		"rank_x", bundle.RankCorrelation.Center.X,
		"rank_y", bundle.RankCorrelation.Center.Y,
		"converged", converged,
	)

	broadcastJob(jm, jobID)
	return nil
}

// saveRun persists the result of job as a run record under the job's ID.
func saveRun(runStore store.Store, job *Job, bundle *fit.ResultBundle) error {
	record := store.NewRunRecord(job.ID, job.Points, job.Guess, job.Config, bundle)
	record.ParentID = job.ParentID
	if err := runStore.SaveRun(job.ID, record); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	slog.Info("Run saved", "job_id", job.ID, "converged", record.Converged)
	return nil
}

// monitorProgress periodically broadcasts progress events during the search
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			broadcastJob(jm, jobID)
		}
	}
}

// broadcastJob sends the job's current state to its SSE subscribers.
func broadcastJob(jm *JobManager, jobID string) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}
	jm.broadcaster.Broadcast(newProgressEvent(job))
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastJob(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastJob(jm, jobID)
}
