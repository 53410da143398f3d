package workerpool

import "sync"

// backoff tracks exponential restart delay for one worker, per spec.md §4.5:
// doubling from initial up to max, reset to initial after a successful
// response, retired after maxRestarts consecutive failures.
type backoff struct {
	mu sync.Mutex

	initialMS   int64
	maxMS       int64
	maxRestarts int

	currentMS int64
	restarts  int
}

func newBackoff(initialMS, maxMS int64, maxRestarts int) *backoff {
	return &backoff{
		initialMS:   initialMS,
		maxMS:       maxMS,
		maxRestarts: maxRestarts,
		currentMS:   initialMS,
	}
}

// next reports the wait duration (ms) for the next restart attempt and
// whether the worker should instead be retired because it has now
// exhausted maxRestarts consecutive failures.
func (b *backoff) next() (waitMS int64, retire bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.restarts++
	if b.restarts > b.maxRestarts {
		return 0, true
	}

	wait := b.currentMS
	b.currentMS *= 2
	if b.currentMS > b.maxMS {
		b.currentMS = b.maxMS
	}
	return wait, false
}

// resetOnSuccess clears the consecutive-failure counter and restores the
// initial delay, per spec.md §4.5 ("reset to initial_backoff after a
// successful response").
func (b *backoff) resetOnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restarts = 0
	b.currentMS = b.initialMS
}

func (b *backoff) restartCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.restarts
}
