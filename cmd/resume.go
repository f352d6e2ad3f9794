package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/conecone/internal/fit"
	"github.com/cwbudde/conecone/internal/server"
	"github.com/cwbudde/conecone/internal/store"
)

var (
	resumeDataDir string
	resumeMethod  string
	resumeIters   int
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Continue a stored run from one method's center",
	Long: `Loads a stored run and starts a new run from the center the chosen
method reached, with the stored configuration and the seed search disabled.
The new run records the old one as its parent.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Run storage directory")
	resumeCmd.Flags().StringVar(&resumeMethod, "method", "regression", "Center to continue from: regression or rank-correlation")
	resumeCmd.Flags().IntVar(&resumeIters, "max-iters", 0, "Iteration budget per method (0 keeps the stored budget)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	parentID := args[0]

	m, err := fit.ParseMethod(resumeMethod)
	if err != nil {
		return err
	}

	runStore, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	record, err := runStore.LoadRun(parentID)
	if err != nil {
		return err
	}

	points, guess, err := server.ResumeInputs(record, m)
	if err != nil {
		return fmt.Errorf("cannot resume run %s: %w", parentID, err)
	}

	cfg := record.Config
	cfg.Seed.Enabled = false
	if resumeIters > 0 {
		cfg.Optimizer.MaxIterations = resumeIters
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runID := uuid.New().String()
	bundle, err := executeRun(ctx, runStore, runID, parentID, points, guess, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Resumed %s from %s center (%.4f, %.4f)\n\n", parentID, m, guess.X, guess.Y)
	printBundle(os.Stdout, bundle)
	fmt.Printf("Saved run %s\n", runID)
	return nil
}
