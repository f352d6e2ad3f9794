package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/conecone/internal/fit"
	"github.com/cwbudde/conecone/internal/opt"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-trace"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Method: "regression", Iteration: 0, Evaluations: 3, X: 10, Y: 10, Loss: 0.4, Timestamp: time.Now()},
		{Method: "regression", Iteration: 1, Evaluations: 5, X: 8, Y: 9, Loss: 0.2, Timestamp: time.Now()},
		{Method: "rank-correlation", Iteration: 0, Evaluations: 3, X: 10, Y: 10, Loss: 0.1, Timestamp: time.Now()},
	}
	for _, e := range entries {
		if err := writer.Write(e); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	expectedPath := filepath.Join(tmpDir, "runs", runID, "trace.jsonl")
	if writer.Path() != expectedPath {
		t.Errorf("Expected path %s, got %s", expectedPath, writer.Path())
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if len(got) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(got))
	}
	for i := range entries {
		if got[i].Method != entries[i].Method || got[i].Iteration != entries[i].Iteration {
			t.Errorf("Entry %d mismatch: got %+v", i, got[i])
		}
		if got[i].X != entries[i].X || got[i].Y != entries[i].Y || got[i].Loss != entries[i].Loss {
			t.Errorf("Entry %d values mismatch: got %+v", i, got[i])
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-append"

	first, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	first.Write(TraceEntry{Method: "regression", Iteration: 0})
	first.Close()

	second, err := NewTraceWriter(tmpDir, runID, true)
	if err != nil {
		t.Fatalf("Failed to reopen trace writer: %v", err)
	}
	second.Write(TraceEntry{Method: "regression", Iteration: 1})
	second.Close()

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 2 || got[1].Iteration != 1 {
		t.Errorf("Expected appended entries, got %+v", got)
	}

	// Truncating writer starts over
	third, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to recreate trace writer: %v", err)
	}
	third.Close()

	info, err := os.Stat(third.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected truncated trace, got %d bytes", info.Size())
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewTraceWriter(tmpDir, "flush-run", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	writer.Write(TraceEntry{Method: "regression", Iteration: 7, Loss: 0.5})
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// Data must be visible before Close
	reader, err := NewTraceReader(tmpDir, "flush-run")
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entry, err := reader.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if entry.Iteration != 7 {
		t.Errorf("Expected iteration 7, got %d", entry.Iteration)
	}
	if _, err := reader.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestTraceReader_Malformed(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "runs", "bad")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "trace.jsonl"), []byte("{\"iteration\":1}\nnot json\n"), 0644); err != nil {
		t.Fatal(err)
	}

	reader, err := NewTraceReader(tmpDir, "bad")
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	if _, err := reader.ReadAll(); err == nil {
		t.Fatal("Expected error for malformed line")
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewTraceWriter(tmpDir, "delete-run", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Close()

	if err := DeleteTrace(tmpDir, "delete-run"); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if _, err := os.Stat(writer.Path()); !os.IsNotExist(err) {
		t.Error("Trace file should be removed")
	}

	if err := DeleteTrace(tmpDir, "never-existed"); err != nil {
		t.Errorf("DeleteTrace should not error for nonexistent file, got: %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-concurrent"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(iter int) {
			method := "regression"
			if iter%2 == 1 {
				method = "rank-correlation"
			}
			if err := writer.Write(TraceEntry{Method: method, Iteration: iter, Loss: float64(iter)}); err != nil {
				t.Errorf("Concurrent write failed: %v", err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	writer.Flush()

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Expected 10 entries, got %d", len(entries))
	}
}

func TestNewTraceEntry(t *testing.T) {
	entry := NewTraceEntry(fit.MethodRankCorrelation, opt.Progress{
		Iteration:   4,
		Evaluations: 11,
		X:           []float64{1.5, -2},
		F:           0.25,
	})

	if entry.Method != "rank-correlation" {
		t.Errorf("Expected method rank-correlation, got %s", entry.Method)
	}
	if entry.Iteration != 4 || entry.Evaluations != 11 || entry.Loss != 0.25 {
		t.Errorf("Unexpected counters: %+v", entry)
	}
	if entry.Center() != (fit.Center{X: 1.5, Y: -2}) {
		t.Errorf("Unexpected center: %+v", entry.Center())
	}
	if entry.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestSummarizeTrace(t *testing.T) {
	entries := []TraceEntry{
		{Method: "regression", Iteration: 0, Evaluations: 3, X: 0, Y: 0, Loss: 0.5},
		{Method: "rank-correlation", Iteration: 0, Evaluations: 3, X: 0, Y: 0, Loss: 0.9},
		{Method: "regression", Iteration: 1, Evaluations: 5, X: 3, Y: 4, Loss: 0.2},
		{Method: "regression", Iteration: 2, Evaluations: 7, X: 3, Y: 4, Loss: 0.1},
	}

	summaries := SummarizeTrace(entries)
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}

	reg := summaries[0]
	if reg.Method != "regression" {
		t.Fatalf("Summaries should follow first appearance, got %s first", reg.Method)
	}
	if reg.Entries != 3 || reg.Iterations != 2 || reg.Evaluations != 7 {
		t.Errorf("Unexpected counters: %+v", reg)
	}
	if reg.StartLoss != 0.5 || reg.EndLoss != 0.1 {
		t.Errorf("Unexpected losses: %+v", reg)
	}
	if reg.End != (fit.Center{X: 3, Y: 4}) {
		t.Errorf("Unexpected end center: %+v", reg.End)
	}
	if reg.PathLength != 5 {
		t.Errorf("Expected path length 5, got %v", reg.PathLength)
	}

	rank := summaries[1]
	if rank.Entries != 1 || rank.PathLength != 0 || rank.StartLoss != rank.EndLoss {
		t.Errorf("Single-entry summary is wrong: %+v", rank)
	}

	if got := SummarizeTrace(nil); len(got) != 0 {
		t.Errorf("Expected no summaries for an empty trace, got %d", len(got))
	}
}

func TestReadTrace(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "read-trace"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	for i, m := range []string{"regression", "rank-correlation", "regression"} {
		if err := writer.Write(TraceEntry{Method: m, Iteration: i}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	all, err := ReadTrace(tmpDir, runID, "")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(all))
	}

	reg, err := ReadTrace(tmpDir, runID, "regression")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(reg) != 2 || reg[0].Iteration != 0 || reg[1].Iteration != 2 {
		t.Errorf("Unexpected filtered entries: %+v", reg)
	}

	if _, err := ReadTrace(tmpDir, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
