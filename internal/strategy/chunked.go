package strategy

import (
	"context"
	"time"

	"github.com/rbright/scout/internal/ringbuffer"
)

// Chunked implements spec.md §4.4.1: the ring buffer is sliced into
// fixed-size chunks dispatched to the Worker Pool as they fill; if any
// chunk fails (missed deadline or worker error) it falls back to Classic
// over the ring buffer's resident window, not the archival file.
type Chunked struct {
	pool Transcriber
	buf  *ringbuffer.Buffer
	cfg  Config

	sched     *scheduler
	startedAt time.Time
}

// NewChunked builds a Ring-Buffer-Chunked strategy over buf.
func NewChunked(pool Transcriber, buf *ringbuffer.Buffer, cfg Config) *Chunked {
	return &Chunked{pool: pool, buf: buf, cfg: cfg}
}

func (c *Chunked) Name() string { return "ring_buffer_chunked" }

func (c *Chunked) Start(ctx context.Context) error {
	c.startedAt = time.Now()
	c.sched = newScheduler(c.buf, c.pool, c.cfg)
	c.sched.start(ctx)
	return nil
}

// Finish stops the scheduler, flushes a trailing partial chunk if one
// meets min_chunk, waits for in-flight chunks, then either stitches
// the ordered chunk texts or falls back to Classic if any chunk missed
// its deadline or failed.
func (c *Chunked) Finish(ctx context.Context) (Result, error) {
	c.sched.flushRemainder(ctx)
	c.sched.stop()

	if c.sched.failedAny() {
		classic := NewClassic(c.pool, c.buf)
		classic.startedAt = c.startedAt
		res, err := classic.Finish(ctx)
		if err != nil {
			return Result{}, err
		}
		res.StrategyName = "ring_buffer_chunked->classic"
		res.FallbackUsed = true
		return res, nil
	}

	results := c.sched.sortedResults()
	text := stitch(results, c.cfg.Overlap > 0)

	return Result{
		Text:             text,
		ProcessingTimeMS: time.Since(c.startedAt).Milliseconds(),
		StrategyName:     "ring_buffer_chunked",
		ChunksProcessed:  len(results),
	}, nil
}

// Cancel aborts the scheduler immediately, discarding any in-flight chunk
// results, for spec.md §4.6 cancel() semantics.
func (c *Chunked) Cancel() {
	if c.sched != nil {
		c.sched.cancel()
	}
}

func (c *Chunked) PartialResults() []PartialResult {
	if c.sched == nil {
		return nil
	}
	return c.sched.sortedResults()
}
