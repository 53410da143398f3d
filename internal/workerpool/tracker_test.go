package workerpool

import (
	"testing"
	"time"
)

func TestTrackerCheckTimeouts(t *testing.T) {
	tr := NewTracker(3)
	tr.Enqueue("chunk-1", 10*time.Millisecond)
	tr.Enqueue("chunk-2", time.Hour)

	time.Sleep(20 * time.Millisecond)
	expired := tr.CheckTimeouts(time.Now())
	if len(expired) != 1 || expired[0] != "chunk-1" {
		t.Fatalf("expected only chunk-1 expired, got %v", expired)
	}
}

func TestTrackerHandleTimeoutRetryBudget(t *testing.T) {
	tr := NewTracker(2)
	tr.Enqueue("chunk-1", time.Hour)

	if !tr.HandleTimeout("chunk-1") {
		t.Fatalf("expected first timeout to allow retry")
	}
	if tr.HandleTimeout("chunk-1") {
		t.Fatalf("expected second timeout to exhaust retry budget")
	}
}

func TestTrackerCompleteRemovesEntry(t *testing.T) {
	tr := NewTracker(3)
	tr.Enqueue("chunk-1", 10*time.Millisecond)
	tr.Complete("chunk-1")

	time.Sleep(20 * time.Millisecond)
	expired := tr.CheckTimeouts(time.Now())
	if len(expired) != 0 {
		t.Fatalf("expected no expired entries after Complete, got %v", expired)
	}
}

func TestTrackerCleanupOld(t *testing.T) {
	tr := NewTracker(3)
	tr.Enqueue("chunk-1", time.Hour)
	tr.CleanupOld(0)

	if tr.HandleTimeout("chunk-1") {
		t.Fatalf("expected chunk-1 already cleaned up")
	}
}
