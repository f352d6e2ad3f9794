package fit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwbudde/conecone/internal/opt"
)

// Local search implementations selectable in ReconstructConfig.
const (
	LocalSimplex = "simplex"
	LocalGonum   = "gonum"
)

// SeedConfig controls the optional global search that replaces the
// caller's guess before the local searches start.
type SeedConfig struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Method     Method  `yaml:"method" json:"method"`
	Iterations int     `yaml:"iterations" json:"iterations"`
	Population int     `yaml:"population" json:"population"`
	Seed       int64   `yaml:"seed" json:"seed"`
	Margin     float64 `yaml:"margin" json:"margin"` // bounding-box growth, fraction of the larger side
}

// ReconstructConfig parameterizes Reconstruct.
type ReconstructConfig struct {
	Local     string       `yaml:"local" json:"local"`
	Optimizer opt.Settings `yaml:"optimizer" json:"optimizer"`
	Seed      SeedConfig   `yaml:"seed" json:"seed"`
}

// DefaultReconstructConfig uses the built-in simplex with default settings
// and no seed search.
func DefaultReconstructConfig() ReconstructConfig {
	return ReconstructConfig{
		Local:     LocalSimplex,
		Optimizer: opt.DefaultSettings(),
		Seed: SeedConfig{
			Method:     MethodRegression,
			Iterations: 50,
			Population: opt.MinMayflyPopulation,
			Seed:       42,
			Margin:     0.1,
		},
	}
}

// Validate reports the first unusable field as an InvalidConfigurationError.
func (c ReconstructConfig) Validate() error {
	if c.Local != LocalSimplex && c.Local != LocalGonum {
		return &InvalidConfigurationError{Field: "local", Reason: fmt.Sprintf("unknown local search %q", c.Local)}
	}
	if err := c.Optimizer.Validate(); err != nil {
		var se *opt.SettingsError
		if errors.As(err, &se) {
			return &InvalidConfigurationError{Field: "optimizer." + se.Field, Reason: se.Reason}
		}
		return &InvalidConfigurationError{Field: "optimizer", Reason: err.Error()}
	}
	if c.Seed.Enabled {
		if c.Seed.Iterations <= 0 {
			return &InvalidConfigurationError{Field: "seed.iterations", Reason: "must be positive"}
		}
		if c.Seed.Population < opt.MinMayflyPopulation {
			return &InvalidConfigurationError{
				Field:  "seed.population",
				Reason: fmt.Sprintf("must be at least %d", opt.MinMayflyPopulation),
			}
		}
		if c.Seed.Margin < 0 {
			return &InvalidConfigurationError{Field: "seed.margin", Reason: "cannot be negative"}
		}
	}
	return nil
}

// ProgressFunc receives per-iteration progress of one method's search.
// Both searches may call it concurrently.
type ProgressFunc func(m Method, p opt.Progress)

// OptimizationResult is the converged (or budget-limited) center of one
// method with the radial profile evaluated there.
type OptimizationResult struct {
	Method      Method          `json:"method"`
	Center      Center          `json:"center"`
	Loss        float64         `json:"loss"`
	Converged   bool            `json:"converged"`
	Status      string          `json:"status"`
	Iterations  int             `json:"iterations"`
	Evaluations int             `json:"evaluations"`
	Profile     []ProfileSample `json:"profile"`
	History     []float64       `json:"history,omitempty"`
}

// ResultBundle holds both methods' results for one reconstruction.
type ResultBundle struct {
	Guess           Center             `json:"guess"`
	Start           Center             `json:"start"`
	Regression      OptimizationResult `json:"regression"`
	RankCorrelation OptimizationResult `json:"rankCorrelation"`
}

// Result returns the result of method m.
func (b *ResultBundle) Result(m Method) *OptimizationResult {
	if m == MethodRankCorrelation {
		return &b.RankCorrelation
	}
	return &b.Regression
}

// Err returns a *NonConvergenceError naming every method that ran out of
// budget, or nil when both converged.
func (b *ResultBundle) Err() error {
	var failed []Method
	for _, m := range Methods {
		if !b.Result(m).Converged {
			failed = append(failed, m)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &NonConvergenceError{Methods: failed}
}

// Reconstruct searches for the apex under both methods, starting each from
// guess (or from the seed search's result when enabled), and builds the
// radial profile at each optimum. The two searches run concurrently and
// share nothing but points and the start.
//
// A search that exhausts its budget is not an error: its result carries
// Converged=false and the bundle's Err reports it.
func Reconstruct(ctx context.Context, points *Points, guess Center, cfg ReconstructConfig, progress ProgressFunc) (*ResultBundle, error) {
	if points == nil || points.Len() < MinPoints {
		return nil, &DegenerateInputError{Reason: fmt.Sprintf("need at least %d control points", MinPoints)}
	}
	if !finite(guess.X) || !finite(guess.Y) {
		return nil, &InvalidConfigurationError{Field: "guess", Reason: "must be finite"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := guess
	if cfg.Seed.Enabled {
		seeded, err := SeedCenter(points, cfg.Seed)
		if err != nil {
			return nil, err
		}
		start = seeded
	}

	slog.Info("Starting center search",
		"points", points.Len(),
		"start_x", start.X,
		"start_y", start.Y,
		"local", cfg.Local,
	)

	results := make([]OptimizationResult, len(Methods))
	errs := make([]error, len(Methods))

	var wg sync.WaitGroup
	for i, m := range Methods {
		wg.Add(1)
		go func(i int, m Method) {
			defer wg.Done()
			res, err := OptimizeCenter(ctx, m, points, start, cfg, progress)
			if err != nil {
				errs[i] = fmt.Errorf("%s search: %w", m, err)
				return
			}
			results[i] = *res
		}(i, m)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return &ResultBundle{
		Guess:           guess,
		Start:           start,
		Regression:      results[0],
		RankCorrelation: results[1],
	}, nil
}

// OptimizeCenter runs one method's local search from start and builds the
// profile at the result.
func OptimizeCenter(ctx context.Context, m Method, points *Points, start Center, cfg ReconstructConfig, progress ProgressFunc) (*OptimizationResult, error) {
	var observer opt.Observer
	if progress != nil {
		observer = func(p opt.Progress) { progress(m, p) }
	}

	var optimizer opt.Optimizer
	switch cfg.Local {
	case LocalGonum:
		optimizer = opt.NewGonumNelderMead(cfg.Optimizer).WithObserver(observer)
	default:
		optimizer = opt.NewSimplex(cfg.Optimizer).WithObserver(observer)
	}

	res, err := optimizer.Minimize(ctx, objective(m, points), start.Vector())
	if err != nil {
		var se *opt.SettingsError
		if errors.As(err, &se) {
			return nil, &InvalidConfigurationError{Field: "optimizer." + se.Field, Reason: se.Reason}
		}
		return nil, err
	}

	center := CenterFromVector(res.X)
	if !res.Converged {
		slog.Warn("Center search did not converge",
			"method", m.String(),
			"status", res.Status.String(),
			"iterations", res.Iterations,
			"evaluations", res.Evaluations,
		)
	}
	slog.Info("Center search complete",
		"method", m.String(),
		"x", center.X,
		"y", center.Y,
		"loss", res.F,
		"converged", res.Converged,
		"iterations", res.Iterations,
	)

	return &OptimizationResult{
		Method:      m,
		Center:      center,
		Loss:        res.F,
		Converged:   res.Converged,
		Status:      res.Status.String(),
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
		Profile:     BuildProfile(points, center),
		History:     res.History,
	}, nil
}

// objective scores a parameter vector (x, y) with method m over the full
// control-point set.
func objective(m Method, points *Points) opt.Objective {
	zs := points.Elevations()
	loss := m.LossFunc()
	return func(x []float64) (float64, error) {
		return loss(Distances(points, CenterFromVector(x)), zs)
	}
}

// SeedCenter runs a Mayfly search of method cfg.Method over the points'
// bounding box and returns the best center found. Search coordinates are
// normalized to the unit square.
func SeedCenter(points *Points, cfg SeedConfig) (Center, error) {
	box := points.BoundingBox(cfg.Margin)
	loss := objective(cfg.Method, points)
	unit := func(u []float64) (float64, error) {
		return loss(box.FromUnit(u).Vector())
	}

	searcher := opt.NewMayfly(cfg.Iterations, cfg.Population, cfg.Seed)
	best, cost, err := searcher.Search(unit, []float64{0, 0}, []float64{1, 1})
	if err != nil {
		return Center{}, fmt.Errorf("seed search: %w", err)
	}

	c := box.Clamp(box.FromUnit(best))
	slog.Info("Seed search complete", "method", cfg.Method.String(), "x", c.X, "y", c.Y, "loss", cost)
	return c, nil
}
