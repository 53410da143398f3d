package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/scout/internal/types"
)

// Status mirrors the control-channel WorkerStatus tag from spec.md §6.
type Status string

const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusBusy     Status = "busy"
	StatusStopping Status = "stopping"
	StatusCrashed  Status = "crashed"
)

// Stats is the per-worker counter snapshot from spec.md §3's Worker record.
type Stats struct {
	Total         uint64
	Successful    uint64
	Failed        uint64
	LastLatencyMS int64
}

// Health is a point-in-time snapshot returned by Pool.GetHealth.
type Health struct {
	WorkerID      uuid.UUID
	Status        Status
	LastHeartbeat time.Time
	Restarts      int
	Retired       bool
}

// worker is the pool's internal record for one child process, matching
// spec.md §3's Worker record fields.
type worker struct {
	id  uuid.UUID
	cfg Config

	mu            sync.Mutex
	transport     transport
	status        Status
	startCount    uint32
	lastHeartbeat time.Time
	inFlightID    string
	inFlightUntil time.Time
	retired       bool
	stats         Stats

	backoff *backoff

	// transportFactory builds this worker's transport. Defaults to real
	// stdio/socket dialing; tests substitute a fake to avoid spawning real
	// processes or sockets.
	transportFactory func(*worker) (transport, error)
}

func newWorker(cfg Config) *worker {
	return &worker{
		id:               uuid.New(),
		cfg:              cfg,
		status:           StatusStarting,
		backoff:          newBackoff(cfg.InitialBackoff.Milliseconds(), cfg.MaxBackoff.Milliseconds(), cfg.MaxRestarts),
		transportFactory: defaultTransportFactory,
	}
}

func defaultTransportFactory(w *worker) (transport, error) {
	switch w.cfg.Transport {
	case TransportSocket:
		idx := int(w.startCount) % max1(len(w.cfg.PushURIs))
		push, pull, control := "", "", ""
		if len(w.cfg.PushURIs) > 0 {
			push = w.cfg.PushURIs[idx]
		}
		if len(w.cfg.PullURIs) > 0 {
			pull = w.cfg.PullURIs[idx]
		}
		if len(w.cfg.ControlURIs) > 0 {
			control = w.cfg.ControlURIs[idx]
		}
		return newSocketTransport(push, pull, control, w.cfg.ResponseTimeout)
	default:
		return newStdioTransport(w.id, w.cfg)
	}
}

// spawn starts (or restarts) the child process and its transport.
func (w *worker) spawn() error {
	t, err := w.transportFactory(w)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.transport = t
	w.status = StatusReady
	w.startCount++
	w.lastHeartbeat = time.Now()
	w.inFlightID = ""
	w.mu.Unlock()
	return nil
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// tryReserve atomically claims this worker for chunkID if it is idle,
// not retired, and not mid-shutdown. The pool calls this under its own
// round-robin scan; only one caller can win the reservation.
func (w *worker) tryReserve(chunkID string, deadline time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.retired || w.inFlightID != "" || w.status == StatusStopping || w.status == StatusCrashed {
		return false
	}
	w.inFlightID = chunkID
	w.inFlightUntil = deadline
	w.status = StatusBusy
	return true
}

// transcribeReserved dispatches chunk to this already-reserved worker.
func (w *worker) transcribeReserved(ctx context.Context, chunk types.AudioChunk) (types.Transcript, error) {
	w.mu.Lock()
	t := w.transport
	w.mu.Unlock()

	transcript, err := t.transcribe(ctx, chunk)

	w.mu.Lock()
	w.inFlightID = ""
	if err == nil {
		w.status = StatusReady
		w.lastHeartbeat = time.Now()
		w.stats.Total++
		w.stats.Successful++
		w.stats.LastLatencyMS = transcript.Metadata.ProcessingTimeMS
	} else {
		w.status = StatusReady
		w.stats.Total++
		w.stats.Failed++
	}
	w.mu.Unlock()

	return transcript, err
}

// heartbeat exchanges a no-op frame; on success it refreshes
// lastHeartbeat directly since a successful transcribe already does so.
func (w *worker) heartbeat(ctx context.Context) error {
	w.mu.Lock()
	busy := w.inFlightID != ""
	t := w.transport
	w.mu.Unlock()
	if busy || t == nil {
		return nil
	}

	hbCtx, cancel := context.WithTimeout(ctx, w.cfg.ResponseTimeout)
	defer cancel()
	if err := t.heartbeat(hbCtx); err != nil {
		return err
	}

	w.mu.Lock()
	w.lastHeartbeat = time.Now()
	w.mu.Unlock()
	return nil
}

// isDead reports whether the worker has missed 2x the heartbeat interval,
// per spec.md §4.5/§5.
func (w *worker) isDead(now time.Time, heartbeatInterval time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.lastHeartbeat) > 2*heartbeatInterval
}

// inFlightChunkID reports the chunk id in flight, if any.
func (w *worker) inFlightChunkID() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlightID == "" {
		return "", false
	}
	return w.inFlightID, true
}

func (w *worker) close() error {
	w.mu.Lock()
	t := w.transport
	w.status = StatusStopping
	w.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.close()
}

func (w *worker) health() Health {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Health{
		WorkerID:      w.id,
		Status:        w.status,
		LastHeartbeat: w.lastHeartbeat,
		Restarts:      w.backoff.restartCount(),
		Retired:       w.retired,
	}
}

func (w *worker) statsSnapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *worker) isBusy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlightID != ""
}

func (w *worker) isRetired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.retired
}

func (w *worker) markRetired() {
	w.mu.Lock()
	w.retired = true
	w.status = StatusCrashed
	w.mu.Unlock()
}

func (w *worker) markCrashed() {
	w.mu.Lock()
	w.status = StatusCrashed
	w.mu.Unlock()
}
