package opt

import (
	"context"
	"fmt"
)

// Objective is a loss to minimize. An error aborts the search.
type Objective func(x []float64) (float64, error)

// Optimizer is a local minimizer started from an initial point.
type Optimizer interface {
	// Minimize searches for a local minimum of obj near x0. Running out of
	// budget is not an error: it is reported by Result.Converged=false.
	Minimize(ctx context.Context, obj Objective, x0 []float64) (*Result, error)
}

// Status tells why a search stopped.
type Status int

const (
	StatusNotTerminated Status = iota
	StatusXTolerance
	StatusFTolerance
	StatusIterationLimit
	StatusEvaluationLimit
)

func (s Status) String() string {
	switch s {
	case StatusXTolerance:
		return "x-tolerance"
	case StatusFTolerance:
		return "f-tolerance"
	case StatusIterationLimit:
		return "iteration-limit"
	case StatusEvaluationLimit:
		return "evaluation-limit"
	default:
		return "not-terminated"
	}
}

// Converged reports whether s is a tolerance-based stop.
func (s Status) Converged() bool {
	return s == StatusXTolerance || s == StatusFTolerance
}

// Result is the outcome of a Minimize call.
type Result struct {
	X           []float64
	F           float64
	Iterations  int
	Evaluations int
	Status      Status
	Converged   bool
	// History holds the best loss after every iteration.
	History []float64
}

// Progress is reported to an Observer once per iteration.
type Progress struct {
	Iteration   int
	Evaluations int
	X           []float64
	F           float64
}

// Observer receives per-iteration progress. It runs on the optimizer's
// goroutine and must not retain X.
type Observer func(Progress)

// Settings bounds a local search.
type Settings struct {
	// MaxIterations caps the number of iterations.
	MaxIterations int `yaml:"maxIterations" json:"maxIterations"`
	// MaxEvaluations caps the number of objective evaluations. The initial
	// simplex is always evaluated in full.
	MaxEvaluations int `yaml:"maxEvaluations" json:"maxEvaluations"`
	// XTolerance is the absolute coordinate spread at which the search stops.
	XTolerance float64 `yaml:"xTolerance" json:"xTolerance"`
	// FTolerance is the loss spread, relative to the best loss, at which the
	// search stops.
	FTolerance float64 `yaml:"fTolerance" json:"fTolerance"`
	// InitialStep is the absolute edge length of the starting simplex. Zero
	// selects 5% of each coordinate (0.00025 for zero coordinates).
	InitialStep float64 `yaml:"initialStep" json:"initialStep"`
}

// DefaultSettings returns the budgets and tolerances used when none are given.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:  1000,
		MaxEvaluations: 2000,
		XTolerance:     1e-4,
		FTolerance:     1e-8,
	}
}

// SettingsError reports an unusable Settings field.
type SettingsError struct {
	Field  string
	Reason string
}

func (e *SettingsError) Error() string {
	return fmt.Sprintf("optimizer settings: %s %s", e.Field, e.Reason)
}

// Validate rejects non-positive budgets and tolerances.
func (s Settings) Validate() error {
	if s.MaxIterations <= 0 {
		return &SettingsError{Field: "maxIterations", Reason: "must be positive"}
	}
	if s.MaxEvaluations <= 0 {
		return &SettingsError{Field: "maxEvaluations", Reason: "must be positive"}
	}
	if !(s.XTolerance > 0) {
		return &SettingsError{Field: "xTolerance", Reason: "must be positive"}
	}
	if !(s.FTolerance > 0) {
		return &SettingsError{Field: "fTolerance", Reason: "must be positive"}
	}
	if s.InitialStep < 0 {
		return &SettingsError{Field: "initialStep", Reason: "cannot be negative"}
	}
	return nil
}

// initialStep returns the simplex edge along coordinate v.
func (s Settings) initialStep(v float64) float64 {
	if s.InitialStep > 0 {
		return s.InitialStep
	}
	if v != 0 {
		return 0.05 * v
	}
	return 0.00025
}
