package workerpool

import (
	"sync"
	"time"
)

// trackEntry is the Message Tracker's per-chunk bookkeeping record from
// spec.md §4.5: {enqueued_at, sent_at, deadline, retries}.
type trackEntry struct {
	enqueuedAt time.Time
	sentAt     time.Time
	deadline   time.Time
	retries    int
}

// Tracker records per-chunk dispatch bookkeeping shared by every transport,
// independent of which worker ends up handling a given chunk.
type Tracker struct {
	mu         sync.Mutex
	entries    map[string]*trackEntry
	maxRetries int
}

// NewTracker builds a tracker whose HandleTimeout permits retry while
// retries < maxRetries.
func NewTracker(maxRetries int) *Tracker {
	return &Tracker{
		entries:    make(map[string]*trackEntry),
		maxRetries: maxRetries,
	}
}

// Enqueue records a chunk as queued, prior to being handed to a worker.
func (t *Tracker) Enqueue(id string, timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.entries[id] = &trackEntry{
		enqueuedAt: now,
		deadline:   now.Add(timeout),
	}
}

// MarkSent records the moment a worker was actually assigned the chunk and
// refreshes the response deadline to run from that moment, per spec.md
// §4.5 ("respects response_timeout from the moment a worker is assigned").
func (t *Tracker) MarkSent(id string, timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		e = &trackEntry{enqueuedAt: time.Now()}
		t.entries[id] = e
	}
	e.sentAt = time.Now()
	e.deadline = e.sentAt.Add(timeout)
}

// Complete removes a chunk's bookkeeping once it has a final result.
func (t *Tracker) Complete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// CheckTimeouts returns ids whose deadline has passed as of now.
func (t *Tracker) CheckTimeouts(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []string
	for id, e := range t.entries {
		if !e.deadline.IsZero() && now.After(e.deadline) {
			expired = append(expired, id)
		}
	}
	return expired
}

// HandleTimeout increments the retry count for id and reports whether the
// caller may retry (retries < maxRetries configured on the tracker).
func (t *Tracker) HandleTimeout(id string) (canRetry bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return false
	}
	e.retries++
	return e.retries < t.maxRetries
}

// CleanupOld drops entries enqueued more than ageSeconds ago, guarding
// against a tracker leak if a chunk id is never completed or retried.
func (t *Tracker) CleanupOld(ageSeconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(ageSeconds * float64(time.Second)))
	for id, e := range t.entries {
		if e.enqueuedAt.Before(cutoff) {
			delete(t.entries, id)
		}
	}
}
