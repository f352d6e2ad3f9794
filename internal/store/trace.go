package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/conecone/internal/fit"
	"github.com/cwbudde/conecone/internal/opt"
)

// TraceEntry is one iteration of one method's center search.
// Each entry is serialized as a JSON line in trace.jsonl.
type TraceEntry struct {
	// Method is the scoring method of the search ("regression" or "rank-correlation")
	Method string `json:"method"`

	// Iteration is the optimizer iteration number
	Iteration int `json:"iteration"`

	// Evaluations is the number of loss evaluations so far
	Evaluations int `json:"evaluations"`

	// X and Y are the best center at this iteration
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// Loss is the best loss at this iteration
	Loss float64 `json:"loss"`

	Timestamp time.Time `json:"timestamp"`
}

// NewTraceEntry records one progress report of method m.
func NewTraceEntry(m fit.Method, p opt.Progress) TraceEntry {
	c := fit.CenterFromVector(p.X)
	return TraceEntry{
		Method:      m.String(),
		Iteration:   p.Iteration,
		Evaluations: p.Evaluations,
		X:           c.X,
		Y:           c.Y,
		Loss:        p.F,
		Timestamp:   time.Now(),
	}
}

// Center returns the entry's best center.
func (e TraceEntry) Center() fit.Center {
	return fit.Center{X: e.X, Y: e.Y}
}

// TraceSummary condenses one method's entries of a trace.
type TraceSummary struct {
	Method      string     `json:"method"`
	Entries     int        `json:"entries"`
	Iterations  int        `json:"iterations"`
	Evaluations int        `json:"evaluations"`
	Start       fit.Center `json:"start"`
	End         fit.Center `json:"end"`
	StartLoss   float64    `json:"startLoss"`
	EndLoss     float64    `json:"endLoss"`
	// PathLength is the distance the best center travelled.
	PathLength float64 `json:"pathLength"`
}

// SummarizeTrace groups entries by method, in order of first appearance.
// Entries of one method must be in iteration order.
func SummarizeTrace(entries []TraceEntry) []TraceSummary {
	var order []string
	byMethod := make(map[string]*TraceSummary)

	for _, e := range entries {
		s, ok := byMethod[e.Method]
		if !ok {
			s = &TraceSummary{Method: e.Method, Start: e.Center(), End: e.Center(), StartLoss: e.Loss}
			byMethod[e.Method] = s
			order = append(order, e.Method)
		}
		c := e.Center()
		s.PathLength += math.Hypot(c.X-s.End.X, c.Y-s.End.Y)
		s.Entries++
		s.Iterations = e.Iteration
		s.Evaluations = e.Evaluations
		s.End = c
		s.EndLoss = e.Loss
	}

	summaries := make([]TraceSummary, len(order))
	for i, m := range order {
		summaries[i] = *byMethod[m]
	}
	return summaries
}

// ReadTrace returns the entries of a run's trace, restricted to method when
// it is not empty.
func ReadTrace(baseDir, runID, method string) ([]TraceEntry, error) {
	reader, err := NewTraceReader(baseDir, runID)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var entries []TraceEntry
	for {
		entry, err := reader.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		if method == "" || entry.Method == method {
			entries = append(entries, *entry)
		}
	}
}

// TraceWriter writes trace entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use, so both method
// searches of a run can share one writer.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

func tracePath(baseDir, runID string) string {
	return filepath.Join(runDir(baseDir, runID), "trace.jsonl")
}

// NewTraceWriter creates a new trace writer for the given run.
// The trace file is created at <baseDir>/runs/<runID>/trace.jsonl.
// If append is true, new entries are appended to existing file.
func NewTraceWriter(baseDir, runID string, append bool) (*TraceWriter, error) {
	if err := os.MkdirAll(runDir(baseDir, runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := tracePath(baseDir, runID)

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends a trace entry to the file.
// The entry is buffered and will be written on Flush() or Close().
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}

	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// Flush writes any buffered data to the file and syncs it to disk.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}

	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}

	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}

	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader creates a new trace reader for the given run.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceReader{
		file:    file,
		scanner: bufio.NewScanner(file),
	}, nil
}

// Read reads the next trace entry from the file.
// Returns io.EOF when no more entries are available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}

	return &entry, nil
}

// ReadAll reads all remaining trace entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry

	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace file for the given run.
// Returns nil if the file doesn't exist.
func DeleteTrace(baseDir, runID string) error {
	err := os.Remove(tracePath(baseDir, runID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
