// Package ui renders the server's HTML pages as templ components.
package ui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

// JobListItem is one row of the job list page.
type JobListItem struct {
	ID        string
	ParentID  string
	State     string
	Points    int
	Centers   []MethodCenter
	Converged bool
	StartTime time.Time
	EndTime   *time.Time
	Error     string
}

// MethodCenter is the latest center one method reached.
type MethodCenter struct {
	Method string
	X, Y   float64
	Loss   float64
}

// JobList renders a table of jobs.
func JobList(items []JobListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}
		if len(items) == 0 {
			if _, err := io.WriteString(w, `<p class="empty">No jobs yet.</p>`); err != nil {
				return err
			}
		} else {
			if _, err := io.WriteString(w, tableHead); err != nil {
				return err
			}
			for _, item := range items {
				if err := jobRow(item).Render(ctx, w); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, "</tbody></table>"); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

func jobRow(item JobListItem) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		status := item.State
		if item.State == "completed" && !item.Converged {
			status += " (not converged)"
		}
		if item.Error != "" {
			status += ": " + item.Error
		}

		var centers string
		for _, c := range item.Centers {
			centers += fmt.Sprintf("<div>%s: (%.3f, %.3f) loss %.3g</div>",
				templ.EscapeString(c.Method), c.X, c.Y, c.Loss)
		}

		duration := "running"
		if item.EndTime != nil {
			duration = item.EndTime.Sub(item.StartTime).Round(time.Millisecond).String()
		}

		id := templ.EscapeString(item.ID)
		_, err := fmt.Fprintf(w,
			`<tr class="%s"><td><a href="/api/v1/jobs/%s">%s</a></td><td>%s</td><td>%d</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			templ.EscapeString(item.State), id, id,
			templ.EscapeString(status), item.Points, centers,
			item.StartTime.Format(time.RFC3339), templ.EscapeString(duration),
		)
		return err
	})
}

const pageHead = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>conecone jobs</title>` +
	`<style>body{font-family:sans-serif}table{border-collapse:collapse}td,th{padding:4px 8px;border-bottom:1px solid #ddd}` +
	`.failed{color:#a00}.cancelled{color:#888}</style></head><body><h1>Reconstruction jobs</h1>`

const tableHead = `<table><thead><tr><th>Job</th><th>State</th><th>Points</th><th>Centers</th><th>Started</th><th>Duration</th></tr></thead><tbody>`
