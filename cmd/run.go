package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/conecone/internal/fit"
	"github.com/cwbudde/conecone/internal/opt"
	"github.com/cwbudde/conecone/internal/store"
)

var (
	pointsPath string
	guessX     float64
	guessY     float64
	outPath    string
	runDataDir string
	seedSearch bool
	localAlgo  string
	maxIters   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconstruct the eruptive center of a point set",
	Long: `Runs both center searches on a control-point file and prints the two
centers. The search starts at the centroid; --guess-x and --guess-y
replace one coordinate each.
With --data-dir the run and its optimizer trace are stored for later resume.`,
	RunE: runReconstruction,
}

func init() {
	runCmd.Flags().StringVar(&pointsPath, "points", "", "Control points JSON file (required)")
	runCmd.Flags().Float64Var(&guessX, "guess-x", 0, "Initial guess, x coordinate")
	runCmd.Flags().Float64Var(&guessY, "guess-y", 0, "Initial guess, y coordinate")
	runCmd.Flags().StringVar(&outPath, "out", "", "Write the result bundle as JSON to this file")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Store the run under this directory")
	runCmd.Flags().BoolVar(&seedSearch, "seed", false, "Replace the guess with a mayfly global search")
	runCmd.Flags().StringVar(&localAlgo, "local", "", "Local search: simplex or gonum (overrides config)")
	runCmd.Flags().IntVar(&maxIters, "max-iters", 0, "Iteration budget per method (overrides config)")

	runCmd.MarkFlagRequired("points")
	rootCmd.AddCommand(runCmd)
}

func runReconstruction(cmd *cobra.Command, args []string) error {
	points, err := fit.LoadPoints(pointsPath)
	if err != nil {
		return err
	}

	cfg := appConfig.Reconstruction
	if localAlgo != "" {
		cfg.Local = localAlgo
	}
	if maxIters > 0 {
		cfg.Optimizer.MaxIterations = maxIters
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed.Enabled = seedSearch
	}

	guess := initialGuess(points, cmd.Flags().Changed("guess-x"), cmd.Flags().Changed("guess-y"), guessX, guessY)

	var runStore *store.FSStore
	if runDataDir != "" {
		runStore, err = store.NewFSStore(runDataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runID := uuid.New().String()
	bundle, err := executeRun(ctx, runStore, runID, "", points, guess, cfg)
	if err != nil {
		return err
	}

	if outPath != "" {
		if err := writeBundle(outPath, bundle); err != nil {
			return err
		}
	}

	printBundle(os.Stdout, bundle)
	if outPath != "" {
		fmt.Printf("Wrote %s\n", outPath)
	}
	if runStore != nil {
		fmt.Printf("Saved run %s\n", runID)
	}
	return nil
}

// initialGuess starts at the centroid and replaces each coordinate whose
// flag was given.
func initialGuess(points *fit.Points, xSet, ySet bool, x, y float64) fit.Center {
	guess := points.Centroid()
	if xSet {
		guess.X = x
	}
	if ySet {
		guess.Y = y
	}
	return guess
}

// executeRun reconstructs the center and, when runStore is set, writes the
// optimizer trace and the finished run record under runID.
func executeRun(ctx context.Context, runStore *store.FSStore, runID, parentID string, points *fit.Points, guess fit.Center, cfg fit.ReconstructConfig) (*fit.ResultBundle, error) {
	slog.Info("Starting reconstruction", "run_id", runID, "points", points.Len(), "local", cfg.Local, "seed", cfg.Seed.Enabled)

	var trace *store.TraceWriter
	if runStore != nil {
		var err error
		trace, err = store.NewTraceWriter(runStore.BaseDir(), runID, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace: %w", err)
		}
	}

	var progress fit.ProgressFunc
	if trace != nil {
		progress = func(m fit.Method, p opt.Progress) {
			if err := trace.Write(store.NewTraceEntry(m, p)); err != nil {
				slog.Warn("Failed to write trace entry", "run_id", runID, "error", err)
			}
		}
	}

	start := time.Now()
	bundle, err := fit.Reconstruct(ctx, points, guess, cfg, progress)

	if trace != nil {
		if cerr := trace.Close(); cerr != nil {
			slog.Warn("Failed to close trace", "run_id", runID, "error", cerr)
		}
		if err != nil {
			if derr := store.DeleteTrace(runStore.BaseDir(), runID); derr != nil {
				slog.Warn("Failed to remove trace", "run_id", runID, "error", derr)
			}
		}
	}
	if err != nil {
		return nil, err
	}

	slog.Info("Reconstruction complete", "run_id", runID, "elapsed", time.Since(start), "converged", bundle.Err() == nil)

	var nce *fit.NonConvergenceError
	if errors.As(bundle.Err(), &nce) {
		slog.Warn("Search stopped on budget", "run_id", runID, "error", nce)
	}

	if runStore != nil {
		record := store.NewRunRecord(runID, points, guess, cfg, bundle)
		record.ParentID = parentID
		if err := runStore.SaveRun(runID, record); err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
	}

	return bundle, nil
}

func writeBundle(path string, bundle *fit.ResultBundle) error {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// printBundle writes one line per method and a warning for every method
// that ran out of budget.
func printBundle(out io.Writer, bundle *fit.ResultBundle) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tX\tY\tLOSS\tITERATIONS\tSTATUS")
	for _, m := range fit.Methods {
		res := bundle.Result(m)
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.6g\t%d\t%s\n",
			m, res.Center.X, res.Center.Y, res.Loss, res.Iterations, res.Status)
	}
	w.Flush()

	if err := bundle.Err(); err != nil {
		fmt.Fprintf(out, "\nWARNING: %v; results are the best centers found within budget\n", err)
	}
}
