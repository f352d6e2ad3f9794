package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/conecone/internal/fit"
)

// RunRecord is a finished reconstruction together with everything needed to
// repeat it: the control points, the caller's guess and the configuration.
//
// Runs are never continued in place. Resuming a run starts a new run from a
// stored center and records the original in ParentID.
type RunRecord struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// ParentID is the run this one was resumed from, if any
	ParentID string `json:"parentId,omitempty"`

	// Points holds the control points in their JSON document form
	Points fit.PointsDocument `json:"points"`

	// Guess is the starting center supplied by the caller
	Guess fit.Center `json:"guess"`

	// Config is the reconstruction configuration the run used
	Config fit.ReconstructConfig `json:"config"`

	// Bundle holds both methods' results
	Bundle *fit.ResultBundle `json:"bundle"`

	// Converged is true when both methods met a tolerance
	Converged bool `json:"converged"`

	// Timestamp records when the run finished
	Timestamp time.Time `json:"timestamp"`
}

// RunInfo contains metadata about a run without the point data or profiles.
type RunInfo struct {
	RunID     string    `json:"runId"`
	ParentID  string    `json:"parentId,omitempty"`
	Points    int       `json:"points"`
	Converged bool      `json:"converged"`
	Timestamp time.Time `json:"timestamp"`

	Regression      fit.Center `json:"regression"`
	RegressionLoss  float64    `json:"regressionLoss"`
	RankCorrelation fit.Center `json:"rankCorrelation"`
	RankLoss        float64    `json:"rankLoss"`
}

// NewRunRecord creates a record from a finished reconstruction.
func NewRunRecord(runID string, points *fit.Points, guess fit.Center, cfg fit.ReconstructConfig, bundle *fit.ResultBundle) *RunRecord {
	return &RunRecord{
		RunID:     runID,
		Points:    points.Document(),
		Guess:     guess,
		Config:    cfg,
		Bundle:    bundle,
		Converged: bundle != nil && bundle.Err() == nil,
		Timestamp: time.Now(),
	}
}

// ToInfo converts a full RunRecord to RunInfo (metadata only).
func (r *RunRecord) ToInfo() RunInfo {
	info := RunInfo{
		RunID:     r.RunID,
		ParentID:  r.ParentID,
		Points:    len(r.Points.X),
		Converged: r.Converged,
		Timestamp: r.Timestamp,
	}
	if r.Bundle != nil {
		info.Regression = r.Bundle.Regression.Center
		info.RegressionLoss = r.Bundle.Regression.Loss
		info.RankCorrelation = r.Bundle.RankCorrelation.Center
		info.RankLoss = r.Bundle.RankCorrelation.Loss
	}
	return info
}

// ControlPoints rebuilds the validated point set from the stored document.
func (r *RunRecord) ControlPoints() (*fit.Points, error) {
	return r.Points.Points()
}

// Validate checks if the record has valid data.
// Returns an error if any required field is missing or invalid.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.Points.X) < fit.MinPoints {
		return &ValidationError{Field: "Points", Reason: fmt.Sprintf("need at least %d points", fit.MinPoints)}
	}
	if len(r.Points.Y) != len(r.Points.X) || len(r.Points.Z) != len(r.Points.X) {
		return &ValidationError{Field: "Points", Reason: "column lengths differ"}
	}
	if r.Bundle == nil {
		return &ValidationError{Field: "Bundle", Reason: "cannot be nil"}
	}
	for _, m := range fit.Methods {
		res := r.Bundle.Result(m)
		if res.Method != m {
			return &ValidationError{Field: "Bundle." + m.String(), Reason: "method mismatch"}
		}
		if len(res.Profile) != len(r.Points.X) {
			return &ValidationError{
				Field:  "Bundle." + m.String() + ".Profile",
				Reason: fmt.Sprintf("expected %d samples, got %d", len(r.Points.X), len(res.Profile)),
			}
		}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if err := r.Config.Validate(); err != nil {
		return &ValidationError{Field: "Config", Reason: err.Error()}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
