package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig holds the tolerances a simplex is tested against.
type ConvergenceConfig struct {
	// XTolerance is the largest absolute coordinate offset between any
	// vertex and the best vertex at which the simplex counts as collapsed.
	XTolerance float64

	// FTolerance is the largest loss spread, relative to the best loss, at
	// which the simplex counts as flat.
	FTolerance float64
}

// ConvergenceTracker keeps the best-loss history of a search and decides
// when the simplex has converged.
type ConvergenceTracker struct {
	config      ConvergenceConfig
	costHistory []float64
	bestCost    float64
}

// NewConvergenceTracker creates a tracker with the given tolerances.
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:      config,
		costHistory: []float64{},
		bestCost:    math.Inf(1),
	}
}

// Update records the best loss of the current iteration.
func (c *ConvergenceTracker) Update(cost float64) {
	c.costHistory = append(c.costHistory, cost)
	if cost < c.bestCost {
		c.bestCost = cost
	}
}

// Check tests a simplex whose vertices are ordered best first. It returns
// StatusXTolerance or StatusFTolerance when a tolerance is met and
// StatusNotTerminated otherwise.
func (c *ConvergenceTracker) Check(vertices [][]float64, values []float64) Status {
	best := vertices[0]

	var xSpread float64
	for _, v := range vertices[1:] {
		for i := range v {
			xSpread = math.Max(xSpread, math.Abs(v[i]-best[i]))
		}
	}
	if xSpread <= c.config.XTolerance {
		slog.Debug("Simplex collapsed", "x_spread", xSpread, "x_tolerance", c.config.XTolerance)
		return StatusXTolerance
	}

	var fSpread float64
	for _, f := range values[1:] {
		fSpread = math.Max(fSpread, math.Abs(f-values[0]))
	}
	if fSpread <= c.config.FTolerance*math.Abs(values[0]) {
		slog.Debug("Simplex flat",
			"f_spread", fSpread,
			"best", values[0],
			"f_tolerance", c.config.FTolerance,
		)
		return StatusFTolerance
	}

	return StatusNotTerminated
}

// BestCost returns the best loss seen so far.
func (c *ConvergenceTracker) BestCost() float64 {
	return c.bestCost
}

// History returns the best loss after every iteration.
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.costHistory...)
}

// Reset clears the tracker's state.
func (c *ConvergenceTracker) Reset() {
	c.costHistory = []float64{}
	c.bestCost = math.Inf(1)
}
