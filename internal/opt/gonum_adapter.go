package opt

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// GonumNelderMead runs gonum's Nelder–Mead implementation under the same
// contract as Simplex. Gonum has no coordinate tolerance, so convergence is
// decided by optimize.FunctionConverge over FTolerance.
type GonumNelderMead struct {
	settings Settings
	observer Observer
	// StallIterations is the number of iterations without a relative
	// improvement above FTolerance before gonum reports convergence.
	StallIterations int
}

// NewGonumNelderMead creates the gonum-backed optimizer.
func NewGonumNelderMead(settings Settings) *GonumNelderMead {
	return &GonumNelderMead{settings: settings, StallIterations: 50}
}

// WithObserver returns a copy of g reporting progress to fn.
func (g *GonumNelderMead) WithObserver(fn Observer) *GonumNelderMead {
	c := *g
	c.observer = fn
	return &c
}

// Minimize runs optimize.Minimize with a NelderMead method from x0.
func (g *GonumNelderMead) Minimize(ctx context.Context, obj Objective, x0 []float64) (*Result, error) {
	if err := g.settings.Validate(); err != nil {
		return nil, err
	}
	if len(x0) == 0 {
		return nil, errors.New("gonum nelder-mead: empty starting point")
	}

	var objErr error
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if objErr != nil {
				return math.Inf(1)
			}
			f, err := obj(x)
			if err == nil && math.IsNaN(f) {
				err = fmt.Errorf("objective returned NaN at %v", x)
			}
			if err != nil {
				objErr = err
				return math.Inf(1)
			}
			return f
		},
		Status: func() (optimize.Status, error) {
			if objErr != nil {
				return optimize.Failure, objErr
			}
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	step := g.settings.InitialStep
	if step <= 0 {
		for _, v := range x0 {
			step = math.Max(step, math.Abs(g.settings.initialStep(v)))
		}
	}

	rec := &historyRecorder{observer: g.observer}
	settings := &optimize.Settings{
		MajorIterations: g.settings.MaxIterations,
		FuncEvaluations: g.settings.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Relative:   g.settings.FTolerance,
			Iterations: g.StallIterations,
		},
		Recorder: rec,
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: step})
	if objErr != nil {
		return nil, fmt.Errorf("gonum nelder-mead: %w", objErr)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("gonum nelder-mead: %w", err)
	}

	status := fromGonumStatus(result.Status)
	return &Result{
		X:           append([]float64{}, result.X...),
		F:           result.F,
		Iterations:  result.Stats.MajorIterations,
		Evaluations: result.Stats.FuncEvaluations,
		Status:      status,
		Converged:   status.Converged(),
		History:     rec.history,
	}, nil
}

func fromGonumStatus(s optimize.Status) Status {
	switch s {
	case optimize.IterationLimit:
		return StatusIterationLimit
	case optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		return StatusEvaluationLimit
	case optimize.StepConvergence:
		return StatusXTolerance
	case optimize.Success, optimize.FunctionConvergence, optimize.FunctionThreshold,
		optimize.MethodConverge, optimize.GradientThreshold:
		return StatusFTolerance
	default:
		return StatusNotTerminated
	}
}

// historyRecorder implements optimize.Recorder, collecting the best loss of
// every major iteration.
type historyRecorder struct {
	observer Observer
	history  []float64
}

func (h *historyRecorder) Init() error {
	h.history = h.history[:0]
	return nil
}

func (h *historyRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op != optimize.MajorIteration {
		return nil
	}
	h.history = append(h.history, loc.F)
	if h.observer != nil {
		h.observer(Progress{
			Iteration:   stats.MajorIterations,
			Evaluations: stats.FuncEvaluations,
			X:           loc.X,
			F:           loc.F,
		})
	}
	return nil
}
