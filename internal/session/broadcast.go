package session

import (
	"sync"

	"github.com/rbright/scout/internal/types"
)

// broadcaster fans one Progress event out to any number of listeners and
// keeps the latest value for snapshot reads, per spec.md §4.6: "Events are
// broadcast to any number of listeners ...; missed events are permitted -
// listeners always see the latest state via a snapshot read."
type broadcaster struct {
	mu      sync.Mutex
	latest  types.Progress
	readers map[chan types.Progress]struct{}
}

func newBroadcaster(initial types.Progress) *broadcaster {
	return &broadcaster{
		latest:  initial,
		readers: make(map[chan types.Progress]struct{}),
	}
}

// subscribe registers a new listener and returns its channel plus an
// unsubscribe func. The channel is buffered by one slot and carries only
// the most recent value: a slow reader never blocks the publisher, it
// just misses intermediate events (permitted by spec.md §5's ordering
// guarantee, since phases are monotone).
func (b *broadcaster) subscribe() (<-chan types.Progress, func()) {
	ch := make(chan types.Progress, 1)

	b.mu.Lock()
	ch <- b.latest
	b.readers[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.readers[ch]; ok {
			delete(b.readers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// publish records the new latest value and delivers it to every listener,
// dropping (then replacing) any value a slow reader hasn't yet consumed.
func (b *broadcaster) publish(p types.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = p
	for ch := range b.readers {
		select {
		case ch <- p:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- p
		}
	}
}

// snapshot returns the most recently published value.
func (b *broadcaster) snapshot() types.Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}
