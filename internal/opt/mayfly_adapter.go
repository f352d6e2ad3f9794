package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinMayflyPopulation is the smallest population mayfly v0.1.0 accepts.
const MinMayflyPopulation = 20

// Searcher is a bounded global search, used to pick a starting point for a
// local Optimizer.
type Searcher interface {
	// Search minimizes obj inside the box [lower, upper] and returns the
	// best point and its loss.
	Search(obj Objective, lower, upper []float64) ([]float64, float64, error)
}

// MayflyAdapter wraps the external Mayfly library to conform to Searcher.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly search adapter.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Search runs Mayfly over the box. The library takes scalar bounds, so all
// dimensions must share lower[0] and upper[0]; callers normalize their
// parameters to a common range first. Candidates whose objective fails are
// treated as infeasible; if every candidate fails, the last error is
// returned.
func (m *MayflyAdapter) Search(obj Objective, lower, upper []float64) ([]float64, float64, error) {
	if m.popSize < MinMayflyPopulation {
		return nil, 0, fmt.Errorf("mayfly: population %d below minimum %d", m.popSize, MinMayflyPopulation)
	}
	if m.maxIters <= 0 {
		return nil, 0, fmt.Errorf("mayfly: iterations must be positive")
	}
	if len(lower) == 0 || len(lower) != len(upper) {
		return nil, 0, fmt.Errorf("mayfly: invalid bounds")
	}
	for i := range lower {
		if lower[i] != lower[0] || upper[i] != upper[0] {
			return nil, 0, fmt.Errorf("mayfly: bounds must be equal across dimensions")
		}
	}

	var (
		lastErr  error
		feasible bool
	)
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(x []float64) float64 {
		f, err := obj(x)
		if err != nil {
			lastErr = err
			return math.Inf(1)
		}
		if math.IsNaN(f) {
			return math.Inf(1)
		}
		feasible = true
		return f
	}
	config.ProblemSize = len(lower)
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly: %w", err)
	}
	// mayfly reports a finite placeholder cost when nothing was feasible.
	if !feasible {
		if lastErr == nil {
			lastErr = fmt.Errorf("no feasible candidate")
		}
		return nil, 0, fmt.Errorf("mayfly: %w", lastErr)
	}

	return append([]float64{}, result.GlobalBest.Position...), result.GlobalBest.Cost, nil
}
