package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// Nelder–Mead move coefficients.
const (
	reflection  = 1.0
	expansion   = 2.0
	contraction = 0.5
	shrinkage   = 0.5
)

// Simplex is a downhill-simplex (Nelder–Mead) minimizer. It finds a local
// minimum relative to the starting point; a different start may settle in
// a different basin.
type Simplex struct {
	settings Settings
	observer Observer
}

// NewSimplex creates a downhill-simplex optimizer.
func NewSimplex(settings Settings) *Simplex {
	return &Simplex{settings: settings}
}

// WithObserver returns a copy of s reporting progress to fn.
func (s *Simplex) WithObserver(fn Observer) *Simplex {
	c := *s
	c.observer = fn
	return &c
}

// errEvaluationBudget stops a step that would exceed MaxEvaluations.
var errEvaluationBudget = errors.New("evaluation budget exhausted")

// simplexRun holds the mutable state of one Minimize call.
type simplexRun struct {
	obj      Objective
	vertices [][]float64
	values   []float64
	evals    int
	limit    int // 0 while the initial simplex is built
}

func (r *simplexRun) eval(x []float64) (float64, error) {
	if r.limit > 0 && r.evals >= r.limit {
		return 0, errEvaluationBudget
	}
	r.evals++
	f, err := r.obj(x)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) {
		return 0, fmt.Errorf("objective returned NaN at %v", x)
	}
	return f, nil
}

// order sorts vertices best first. Equal losses keep their position.
func (r *simplexRun) order() {
	idx := make([]int, len(r.vertices))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return r.values[idx[a]] < r.values[idx[b]]
	})
	vertices := make([][]float64, len(idx))
	values := make([]float64, len(idx))
	for i, j := range idx {
		vertices[i] = r.vertices[j]
		values[i] = r.values[j]
	}
	r.vertices, r.values = vertices, values
}

// Minimize runs the simplex search from x0.
func (s *Simplex) Minimize(ctx context.Context, obj Objective, x0 []float64) (*Result, error) {
	if err := s.settings.Validate(); err != nil {
		return nil, err
	}
	if len(x0) == 0 {
		return nil, errors.New("simplex: empty starting point")
	}

	n := len(x0)
	run := &simplexRun{
		obj:      obj,
		vertices: make([][]float64, n+1),
		values:   make([]float64, n+1),
	}
	for i := range run.vertices {
		v := append([]float64{}, x0...)
		if i > 0 {
			v[i-1] += s.settings.initialStep(x0[i-1])
		}
		f, err := run.eval(v)
		if err != nil {
			return nil, fmt.Errorf("simplex: initial vertex %d: %w", i, err)
		}
		run.vertices[i] = v
		run.values[i] = f
	}

	run.limit = s.settings.MaxEvaluations

	tracker := NewConvergenceTracker(ConvergenceConfig{
		XTolerance: s.settings.XTolerance,
		FTolerance: s.settings.FTolerance,
	})

	iterations := 0
	status := StatusNotTerminated
	for {
		run.order()
		tracker.Update(run.values[0])
		if s.observer != nil {
			s.observer(Progress{
				Iteration:   iterations,
				Evaluations: run.evals,
				X:           run.vertices[0],
				F:           run.values[0],
			})
		}

		if status = tracker.Check(run.vertices, run.values); status != StatusNotTerminated {
			break
		}
		if iterations >= s.settings.MaxIterations {
			status = StatusIterationLimit
			break
		}
		if run.evals >= s.settings.MaxEvaluations {
			status = StatusEvaluationLimit
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		iterations++
		if err := s.step(run); err != nil {
			if errors.Is(err, errEvaluationBudget) {
				// A cut-short step leaves every vertex paired with its value.
				run.order()
				status = StatusEvaluationLimit
				break
			}
			return nil, fmt.Errorf("simplex: iteration %d: %w", iterations, err)
		}
	}

	slog.Debug("Simplex search finished",
		"status", status.String(),
		"iterations", iterations,
		"evaluations", run.evals,
		"best_cost", run.values[0],
	)

	return &Result{
		X:           append([]float64{}, run.vertices[0]...),
		F:           run.values[0],
		Iterations:  iterations,
		Evaluations: run.evals,
		Status:      status,
		Converged:   status.Converged(),
		History:     tracker.History(),
	}, nil
}

// step replaces the worst vertex by reflection, expansion or contraction,
// or shrinks the whole simplex toward the best vertex.
func (s *Simplex) step(r *simplexRun) error {
	n := len(r.vertices) - 1
	worst := r.vertices[n]

	centroid := make([]float64, len(worst))
	for _, v := range r.vertices[:n] {
		for i := range v {
			centroid[i] += v[i] / float64(n)
		}
	}
	along := func(coef float64) []float64 {
		p := make([]float64, len(centroid))
		for i := range p {
			p[i] = centroid[i] + coef*(centroid[i]-worst[i])
		}
		return p
	}

	xr := along(reflection)
	fr, err := r.eval(xr)
	if err != nil {
		return err
	}

	switch {
	case fr < r.values[0]:
		xe := along(reflection * expansion)
		fe, err := r.eval(xe)
		if err != nil {
			return err
		}
		if fe < fr {
			r.vertices[n], r.values[n] = xe, fe
		} else {
			r.vertices[n], r.values[n] = xr, fr
		}
		return nil

	case fr < r.values[n-1]:
		r.vertices[n], r.values[n] = xr, fr
		return nil

	case fr < r.values[n]:
		xc := along(reflection * contraction)
		fc, err := r.eval(xc)
		if err != nil {
			return err
		}
		if fc <= fr {
			r.vertices[n], r.values[n] = xc, fc
			return nil
		}

	default:
		xcc := along(-contraction)
		fcc, err := r.eval(xcc)
		if err != nil {
			return err
		}
		if fcc < r.values[n] {
			r.vertices[n], r.values[n] = xcc, fcc
			return nil
		}
	}

	return s.shrink(r)
}

func (s *Simplex) shrink(r *simplexRun) error {
	best := r.vertices[0]
	for j := 1; j < len(r.vertices); j++ {
		v := make([]float64, len(best))
		for i := range v {
			v[i] = best[i] + shrinkage*(r.vertices[j][i]-best[i])
		}
		f, err := r.eval(v)
		if err != nil {
			return err
		}
		r.vertices[j], r.values[j] = v, f
	}
	return nil
}
