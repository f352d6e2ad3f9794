package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/conecone/internal/fit"
	"github.com/cwbudde/conecone/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the body of GET /api/v1/jobs/:id/status.
type jobStatus struct {
	ID        string                  `json:"id"`
	ParentID  string                  `json:"parentId"`
	State     server.JobState         `json:"state"`
	Points    int                     `json:"points"`
	Guess     fit.Center              `json:"guess"`
	Config    fit.ReconstructConfig   `json:"config"`
	Progress  []server.MethodProgress `json:"progress"`
	Converged bool                    `json:"converged"`
	Elapsed   float64                 `json:"elapsed"`
	Error     string                  `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func getJSON(url string, v interface{}) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(url string) error {
	var jobs []server.Job
	if _, err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job.ID)
		fmt.Printf("  State: %s\n", job.State)
		if job.ParentID != "" {
			fmt.Printf("  Resumed from: %s\n", job.ParentID)
		}
		for _, p := range job.Progress {
			fmt.Printf("  %s: (%.4f, %.4f) loss %.6g\n", p.Method, p.Center.X, p.Center.Y, p.Loss)
		}
		if job.State == server.StateCompleted && !job.Converged {
			fmt.Println("  Not converged")
		}
		fmt.Println()
	}

	return nil
}

func getJobStatus(url, jobID string) error {
	var status jobStatus
	code, err := getJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Job: %s\n", status.ID)
	fmt.Printf("State: %s\n", status.State)
	if status.ParentID != "" {
		fmt.Printf("Resumed from: %s\n", status.ParentID)
	}
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Points: %d\n", status.Points)
	fmt.Printf("  Guess: (%.4f, %.4f)\n", status.Guess.X, status.Guess.Y)
	fmt.Printf("  Local search: %s\n", status.Config.Local)
	fmt.Printf("  Max iterations: %d\n", status.Config.Optimizer.MaxIterations)
	fmt.Printf("  Seed search: %v\n", status.Config.Seed.Enabled)
	fmt.Println()

	fmt.Println("Progress:")
	for _, p := range status.Progress {
		fmt.Printf("  %s: iteration %d, %d evaluations, center (%.4f, %.4f), loss %.6g\n",
			p.Method, p.Iteration, p.Evaluations, p.Center.X, p.Center.Y, p.Loss)
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.State == server.StateCompleted && !status.Converged {
		fmt.Println("\nWARNING: at least one method stopped on its iteration or evaluation budget")
	}
	if status.Error != "" {
		fmt.Printf("\nError: %s\n", status.Error)
	}

	return nil
}
