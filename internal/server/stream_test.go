package server

import (
	"testing"
	"time"

	"github.com/cwbudde/conecone/internal/fit"
)

func receive(t *testing.T, ch chan ProgressEvent) ProgressEvent {
	t.Helper()

	select {
	case event, ok := <-ch:
		if !ok {
			t.Fatal("Channel closed unexpectedly")
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
	return ProgressEvent{}
}

func TestEventBroadcaster_Broadcast(t *testing.T) {
	eb := NewEventBroadcaster()

	a := eb.Subscribe("job1")
	b := eb.Subscribe("job1")
	other := eb.Subscribe("job2")

	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning})

	if got := receive(t, a); got.State != StateRunning {
		t.Errorf("Expected running event, got %s", got.State)
	}
	if got := receive(t, b); got.JobID != "job1" {
		t.Errorf("Expected job1 event, got %s", got.JobID)
	}

	select {
	case event := <-other:
		t.Errorf("Subscriber of job2 received %+v", event)
	default:
	}
}

func TestEventBroadcaster_ReplaysLastEvent(t *testing.T) {
	eb := NewEventBroadcaster()

	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning})
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateCompleted})

	ch := eb.Subscribe("job1")
	if got := receive(t, ch); got.State != StateCompleted {
		t.Errorf("Late subscriber should see the last event, got %s", got.State)
	}
}

func TestEventBroadcaster_Unsubscribe(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	eb.Unsubscribe("job1", ch)

	if _, ok := <-ch; ok {
		t.Error("Channel should be closed after Unsubscribe")
	}

	// A second call must not close the channel again.
	eb.Unsubscribe("job1", ch)

	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning})
}

func runningEvent(jobID string, iteration int) ProgressEvent {
	return ProgressEvent{
		JobID:    jobID,
		State:    StateRunning,
		Progress: []MethodProgress{{Method: fit.MethodRegression, Iteration: iteration}},
	}
}

func TestEventBroadcaster_DropsWhenFull(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("job1")

	for i := 0; i < cap(ch)+5; i++ {
		eb.Broadcast(runningEvent("job1", i))
	}

	if len(ch) != cap(ch) {
		t.Errorf("Expected a full buffer of %d, got %d", cap(ch), len(ch))
	}
}

func TestEventBroadcaster_SkipsRepeats(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("job1")

	if !eb.Broadcast(runningEvent("job1", 1)) {
		t.Fatal("First event should be sent")
	}
	if eb.Broadcast(runningEvent("job1", 1)) {
		t.Error("Repeated event should be dropped")
	}
	if !eb.Broadcast(runningEvent("job1", 2)) {
		t.Error("Changed progress should be sent")
	}
	done := runningEvent("job1", 2)
	done.State = StateCompleted
	if !eb.Broadcast(done) {
		t.Error("State change should be sent")
	}

	var seqs []uint64
	for len(ch) > 0 {
		seqs = append(seqs, (<-ch).Seq)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Errorf("Expected sequence 1,2,3, got %v", seqs)
	}
}

func TestProgressEvent_Name(t *testing.T) {
	tests := map[JobState]string{
		StatePending:   "progress",
		StateRunning:   "progress",
		StateCompleted: "completed",
		StateFailed:    "failed",
		StateCancelled: "cancelled",
	}
	for state, want := range tests {
		if got := (ProgressEvent{State: state}).Name(); got != want {
			t.Errorf("%s: expected %q, got %q", state, want, got)
		}
	}
}
