package strategy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rbright/scout/internal/types"
)

// Streaming implements spec.md §4.4.2: native streaming over an
// internal 16 kHz mono circular buffer fed directly by the session's
// sample forwarder (already channel-averaged and resampled upstream —
// see internal/strategy/resample.go). Partial results are delivered to
// a caller-supplied callback as each chunk completes.
type Streaming struct {
	pool     Transcriber
	cfg      Config
	callback func(PartialResult)

	mu        sync.Mutex
	samples   []float32
	elapsed   time.Duration
	nextStart time.Duration
	nextID    int
	results   map[int]PartialResult

	wg        sync.WaitGroup
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	startedAt time.Time
}

// NewStreaming builds a Native Streaming strategy. callback may be nil
// if the embedder doesn't want partial updates.
func NewStreaming(pool Transcriber, cfg Config, callback func(PartialResult)) *Streaming {
	return &Streaming{pool: pool, cfg: cfg, callback: callback, results: make(map[int]PartialResult)}
}

func (s *Streaming) Name() string { return "native_streaming" }

func (s *Streaming) Start(ctx context.Context) error {
	s.startedAt = time.Now()
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(ctx)
	return nil
}

// FeedSamples appends already-16kHz-mono samples from the forwarder.
func (s *Streaming) FeedSamples(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, samples...)
	s.elapsed += time.Duration(float64(len(samples)) / float64(s.cfg.StreamingSampleRate) * float64(time.Second))
}

func (s *Streaming) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
		s.tryDispatch(ctx, false)
	}
}

// tryDispatch slices off one chunk_duration of buffered samples (or
// whatever is left, if final) and transcribes it asynchronously.
func (s *Streaming) tryDispatch(ctx context.Context, final bool) {
	s.mu.Lock()
	needed := int(float64(s.cfg.ChunkDuration.Seconds()) * float64(s.cfg.StreamingSampleRate))
	if !final && len(s.samples) < needed {
		s.mu.Unlock()
		return
	}
	if final {
		minNeeded := int(float64(s.cfg.MinChunk.Seconds()) * float64(s.cfg.StreamingSampleRate))
		if len(s.samples) < minNeeded {
			s.mu.Unlock()
			return
		}
		needed = len(s.samples)
	}

	chunkSamples := s.samples[:needed]
	s.samples = s.samples[needed:]
	start := s.nextStart
	s.nextStart += time.Duration(float64(needed) / float64(s.cfg.StreamingSampleRate) * float64(time.Second))
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.transcribeChunk(ctx, id, start, chunkSamples)
	}()
}

func (s *Streaming) transcribeChunk(ctx context.Context, id int, start time.Duration, samples []float32) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.ChunkTimeout)
	defer cancel()

	chunk := types.NewAudioChunk(samples, s.cfg.StreamingSampleRate, 1)
	begin := time.Now()
	transcript, err := s.pool.Transcribe(reqCtx, chunk)
	if err != nil {
		return
	}

	pr := PartialResult{
		ChunkID:          id,
		Text:             transcript.Text,
		StartTime:        start,
		ProcessingTimeMS: time.Since(begin).Milliseconds(),
		IsPartial:        true,
	}

	s.mu.Lock()
	s.results[id] = pr
	s.mu.Unlock()

	if s.callback != nil {
		s.callback(pr)
	}
}

// Finish stops the loop, flushes whatever is left (regardless of
// min_chunk, since there's no next window coming), waits for in-flight
// chunks, and assembles the final transcript in chunk_id order.
func (s *Streaming) Finish(ctx context.Context) (Result, error) {
	s.closeOnce.Do(func() { close(s.stopCh) })
	<-s.done

	s.mu.Lock()
	hasRemainder := len(s.samples) > 0
	s.mu.Unlock()
	if hasRemainder {
		s.flushAll(ctx)
	}
	s.wg.Wait()

	results := s.sortedResults()
	text := stitch(results, false)

	return Result{
		Text:             text,
		ProcessingTimeMS: time.Since(s.startedAt).Milliseconds(),
		StrategyName:     "native_streaming",
		ChunksProcessed:  len(results),
	}, nil
}

func (s *Streaming) flushAll(ctx context.Context) {
	s.mu.Lock()
	chunkSamples := s.samples
	s.samples = nil
	start := s.nextStart
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	if len(chunkSamples) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.transcribeChunk(ctx, id, start, chunkSamples)
	}()
}

func (s *Streaming) PartialResults() []PartialResult { return s.sortedResults() }

// Cancel halts the dispatch loop immediately without flushing the
// remainder or waiting for in-flight chunk responses.
func (s *Streaming) Cancel() {
	s.closeOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

func (s *Streaming) sortedResults() []PartialResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PartialResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out
}
