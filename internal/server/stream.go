package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ProgressEvent is one SSE message about a job. Seq increases by one for
// every distinct event of the job.
type ProgressEvent struct {
	Seq       uint64           `json:"seq"`
	JobID     string           `json:"jobId"`
	State     JobState         `json:"state"`
	Progress  []MethodProgress `json:"progress"`
	Converged bool             `json:"converged"`
	Warning   string           `json:"warning,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func newProgressEvent(job *Job) ProgressEvent {
	event := ProgressEvent{
		JobID:     job.ID,
		State:     job.State,
		Progress:  job.Progress,
		Converged: job.Converged,
		Error:     job.Error,
		Timestamp: time.Now(),
	}
	if job.State == StateCompleted && job.Bundle != nil {
		if err := job.Bundle.Err(); err != nil {
			event.Warning = err.Error()
		}
	}
	return event
}

// Name is the SSE event name: "progress" until the job is terminal, then
// the terminal state.
func (e ProgressEvent) Name() string {
	if e.State.Terminal() {
		return string(e.State)
	}
	return "progress"
}

// sameAs reports whether e carries no news over prev.
func (e ProgressEvent) sameAs(prev ProgressEvent) bool {
	if e.State != prev.State || e.Error != prev.Error || len(e.Progress) != len(prev.Progress) {
		return false
	}
	for i := range e.Progress {
		if e.Progress[i] != prev.Progress[i] {
			return false
		}
	}
	return true
}

// EventBroadcaster fans job events out to SSE clients. It numbers events
// per job, drops events that repeat the previous one, and keeps the latest
// event for clients that subscribe later.
type EventBroadcaster struct {
	mu        sync.Mutex
	clients   map[string]map[chan ProgressEvent]bool
	lastEvent map[string]ProgressEvent
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan ProgressEvent]bool),
		lastEvent: make(map[string]ProgressEvent),
	}
}

// Subscribe registers a client for jobID. The latest event, if any, is
// queued on the returned channel immediately.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, 10)

	if eb.clients[jobID] == nil {
		eb.clients[jobID] = make(map[chan ProgressEvent]bool)
	}
	eb.clients[jobID][ch] = true

	if last, ok := eb.lastEvent[jobID]; ok {
		ch <- last
	}

	slog.Debug("SSE client subscribed", "jobID", jobID, "total_clients", len(eb.clients[jobID]))
	return ch
}

// Unsubscribe removes and closes ch. Calling it twice is safe.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[jobID]; ok {
		if clients[ch] {
			delete(clients, ch)
			close(ch)
		}
		if len(clients) == 0 {
			delete(eb.clients, jobID)
		}
	}

	slog.Debug("SSE client unsubscribed", "jobID", jobID)
}

// Broadcast numbers event and sends it to every client of its job. It
// reports false when the event repeats the previous one and was dropped.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	last, seen := eb.lastEvent[event.JobID]
	if seen && event.sameAs(last) {
		return false
	}
	event.Seq = last.Seq + 1
	eb.lastEvent[event.JobID] = event

	clients := eb.clients[event.JobID]
	for ch := range clients {
		select {
		case ch <- event:
		default:
			slog.Warn("SSE channel full, skipping event", "jobID", event.JobID, "seq", event.Seq)
		}
	}
	return true
}

// handleJobStream streams a job's events until the terminal one.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, eventChan)

	// A job that never broadcast has nothing queued yet.
	if len(eventChan) == 0 {
		if err := writeSSEEvent(w, newProgressEvent(job)); err != nil {
			slog.Error("Failed to write initial SSE event", "error", err)
			return
		}
		flusher.Flush()
		if job.State.Terminal() {
			return
		}
	}

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "jobID", jobID)
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
			if event.State.Terminal() {
				return
			}

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes event as a named SSE message.
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if event.Seq > 0 {
		_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event.Name(), event.Seq, data)
	} else {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name(), data)
	}
	return err
}
