package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/scout/internal/types"
)

// Pool implements spec.md §4.5: an out-of-process pool of transcription
// workers with round-robin dispatch, heartbeat-driven restart, exponential
// backoff, and worker retirement after MaxRestarts.
type Pool struct {
	cfg     Config
	tracker *Tracker

	mu       sync.Mutex
	cond     *sync.Cond
	workers  []*worker
	rrCursor int

	cancel context.CancelFunc

	// transportFactory overrides how each worker builds its transport;
	// nil means each worker uses its own default (real stdio/socket).
	transportFactory func(*worker) (transport, error)
}

// New builds a pool from cfg. Call Start to spawn workers.
func New(cfg Config) *Pool {
	p := &Pool{cfg: cfg, tracker: NewTracker(cfg.MaxRestarts)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// newWithTransportFactory builds a pool whose workers use factory instead
// of real stdio/socket transports — used by tests to simulate worker
// crashes, timeouts, and heartbeats without external processes.
func newWithTransportFactory(cfg Config, factory func(*worker) (transport, error)) *Pool {
	p := New(cfg)
	p.transportFactory = factory
	return p
}

// Start spawns cfg.Size workers and begins the heartbeat monitor.
func (p *Pool) Start(ctx context.Context) error {
	hbCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.Size; i++ {
		w := newWorker(p.cfg)
		if p.transportFactory != nil {
			w.transportFactory = p.transportFactory
		}
		if err := w.spawn(); err != nil {
			return fmt.Errorf("workerpool: spawn worker %d: %w", i, err)
		}
		p.mu.Lock()
		p.workers = append(p.workers, w)
		p.mu.Unlock()
	}

	go p.heartbeatLoop(hbCtx)
	return nil
}

// Transcribe dispatches chunk to the next available worker, round-robin.
// If every worker is in-flight the call blocks ("queues internally") until
// one frees up or ctx is cancelled. On failure the returned error is
// always a *types.TranscriptionError, carrying the chunk's id and a
// stable code (spec.md §7).
func (p *Pool) Transcribe(ctx context.Context, chunk types.AudioChunk) (types.Transcript, error) {
	id := chunk.ID.String()
	p.tracker.Enqueue(id, p.cfg.ResponseTimeout)
	defer p.tracker.Complete(id)

	w, err := p.acquire(ctx, id)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return types.Transcript{}, types.NewTranscriptionError(chunk.ID, types.CodeWorkerTimeout, err.Error())
		}
		return types.Transcript{}, types.NewTranscriptionError(chunk.ID, types.CodeNoWorkers, err.Error())
	}
	p.tracker.MarkSent(id, p.cfg.ResponseTimeout)

	deadline := time.Now().Add(p.cfg.ResponseTimeout)
	reqCtx, reqCancel := context.WithDeadline(ctx, deadline)
	defer reqCancel()

	transcript, terr := w.transcribeReserved(reqCtx, chunk)

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()

	if terr != nil {
		werr := p.onWorkerFailure(w, terr)
		return types.Transcript{}, p.toTranscriptionError(chunk.ID, werr)
	}

	w.backoff.resetOnSuccess()
	return transcript, nil
}

// acquire blocks until a non-busy, non-retired worker is reserved.
func (p *Pool) acquire(ctx context.Context, chunkID string) (*worker, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-stop:
		}
	}()

	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if len(p.workers) == 0 {
			return nil, types.ErrNoWorkers
		}
		for i := 0; i < len(p.workers); i++ {
			idx := (p.rrCursor + i) % len(p.workers)
			w := p.workers[idx]
			deadline := time.Now().Add(p.cfg.ResponseTimeout)
			if w.tryReserve(chunkID, deadline) {
				p.rrCursor = (idx + 1) % len(p.workers)
				return w, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		p.cond.Wait()
	}
}

// onWorkerFailure marks w crashed, kills its transport, and asynchronously
// restarts it with exponential backoff (or retires it past MaxRestarts).
// It returns the original error for the caller to classify.
func (p *Pool) onWorkerFailure(w *worker, err error) error {
	w.markCrashed()
	go p.restartWithBackoff(w)
	return err
}

func (p *Pool) restartWithBackoff(w *worker) {
	wait, retire := w.backoff.next()
	_ = w.close()

	if retire {
		w.markRetired()
		p.mu.Lock()
		p.removeWorkerLocked(w)
		p.cond.Broadcast()
		p.mu.Unlock()
		return
	}

	time.Sleep(time.Duration(wait) * time.Millisecond)
	if err := w.spawn(); err != nil {
		p.restartWithBackoff(w)
		return
	}
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Pool) removeWorkerLocked(w *worker) {
	for i, x := range p.workers {
		if x == w {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			return
		}
	}
}

// toTranscriptionError normalizes a transcribeReserved failure into the
// wire error taxonomy: a structured *types.TranscriptionError from the
// worker is passed through; anything else is classified timeout vs crash.
func (p *Pool) toTranscriptionError(id uuid.UUID, err error) *types.TranscriptionError {
	var te *types.TranscriptionError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTranscriptionError(id, types.CodeWorkerTimeout, err.Error())
	}
	return types.NewTranscriptionError(id, types.CodeWorkerCrash, err.Error())
}

// heartbeatLoop polls idle workers every HeartbeatInterval; a worker more
// than 2x the interval silent is declared dead and restarted.
func (p *Pool) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkHeartbeats(ctx)
		}
	}
}

func (p *Pool) checkHeartbeats(ctx context.Context) {
	p.mu.Lock()
	workers := append([]*worker(nil), p.workers...)
	p.mu.Unlock()

	now := time.Now()
	for _, w := range workers {
		if w.isBusy() {
			continue
		}
		if w.isDead(now, p.cfg.HeartbeatInterval) {
			p.onWorkerFailure(w, types.ErrWorkerCrash)
			continue
		}
		hbCtx, cancel := context.WithTimeout(ctx, p.cfg.ResponseTimeout)
		_ = w.heartbeat(hbCtx)
		cancel()
	}
}

// Stop closes every worker's transport (for stdio this kills the child
// process at once; no shutdown message is sent) and returns once all are
// closed or after 5s, whichever comes first.
func (p *Pool) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	p.mu.Lock()
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()
	p.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			_ = w.close()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	return nil
}

// GetStats returns a per-worker stats snapshot.
func (p *Pool) GetStats() map[uuid.UUID]Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[uuid.UUID]Stats, len(p.workers))
	for _, w := range p.workers {
		out[w.id] = w.statsSnapshot()
	}
	return out
}

// GetHealth returns a per-worker health snapshot.
func (p *Pool) GetHealth() []Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Health, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w.health())
	}
	return out
}

// Size reports the number of non-retired workers currently in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}
