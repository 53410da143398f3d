package strategy

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rbright/scout/internal/ringbuffer"
	"github.com/rbright/scout/internal/types"
)

// scheduler runs the chunk-extraction loop described in spec.md §4.4.1:
// wait for enough resident audio, extract it, dispatch it to the
// Worker Pool, advance the cursor by (chunk_duration - overlap).
type scheduler struct {
	buf  *ringbuffer.Buffer
	pool Transcriber
	cfg  Config

	mu        sync.Mutex
	nextStart time.Duration
	nextID    int
	results   map[int]PartialResult
	failed    bool // a chunk missed its end-to-end deadline or crashed

	wg        sync.WaitGroup
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newScheduler(buf *ringbuffer.Buffer, pool Transcriber, cfg Config) *scheduler {
	return &scheduler{
		buf:     buf,
		pool:    pool,
		cfg:     cfg,
		results: make(map[int]PartialResult),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *scheduler) start(ctx context.Context) {
	go s.run(ctx)
}

func (s *scheduler) run(ctx context.Context) {
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

		s.mu.Lock()
		start := s.nextStart
		s.mu.Unlock()

		if s.buf.Duration() < start+s.cfg.ChunkDuration {
			continue
		}
		s.dispatch(ctx, start, s.cfg.ChunkDuration)

		s.mu.Lock()
		s.nextStart = start + s.cfg.ChunkDuration - s.cfg.Overlap
		s.mu.Unlock()
	}
}

// dispatch extracts [start, start+duration) and sends it to the pool
// asynchronously, tagging the result with a monotone chunk id.
func (s *scheduler) dispatch(ctx context.Context, start, duration time.Duration) {
	samples, err := s.buf.ExtractChunk(start, duration)
	if err != nil || len(samples) == 0 {
		return
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	if s.cfg.ChunkDir != "" {
		path := chunkPath(s.cfg.ChunkDir, id)
		_ = s.buf.SaveChunkToFile(samples, path)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.transcribeChunk(ctx, id, start, samples)
	}()
}

func (s *scheduler) transcribeChunk(ctx context.Context, id int, start time.Duration, samples []float32) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.ChunkTimeout)
	defer cancel()

	spec := s.buf.Spec()
	chunk := types.NewAudioChunk(samples, spec.SampleRate, spec.Channels)
	begin := time.Now()

	transcript, err := s.pool.Transcribe(reqCtx, chunk)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed = true
		return
	}
	s.results[id] = PartialResult{
		ChunkID:          id,
		Text:             transcript.Text,
		StartTime:        start,
		ProcessingTimeMS: time.Since(begin).Milliseconds(),
	}
}

// flushRemainder dispatches one final chunk covering whatever audio is
// left, if it meets min_chunk.
func (s *scheduler) flushRemainder(ctx context.Context) {
	s.mu.Lock()
	start := s.nextStart
	s.mu.Unlock()

	remaining := s.buf.Duration() - start
	if remaining < s.cfg.MinChunk {
		return
	}
	s.dispatch(ctx, start, remaining)
}

// stop halts the extraction loop and waits for in-flight chunks, up to
// the chunk timeout, to finish (each is already individually bounded).
func (s *scheduler) stop() {
	s.closeOnce.Do(func() { close(s.stopCh) })
	<-s.done
	s.wg.Wait()
}

// cancel halts the extraction loop immediately without waiting for
// in-flight chunks, for spec.md §4.6 cancel(): in-flight worker requests
// are allowed to complete but their results are discarded.
func (s *scheduler) cancel() {
	s.closeOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

func (s *scheduler) failedAny() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

func (s *scheduler) sortedResults() []PartialResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PartialResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out
}

func (s *scheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func chunkPath(dir string, id int) string {
	return dir + "/chunk_" + strconv.Itoa(id) + ".wav"
}
