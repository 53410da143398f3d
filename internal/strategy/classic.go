package strategy

import (
	"context"
	"time"

	"github.com/rbright/scout/internal/ringbuffer"
	"github.com/rbright/scout/internal/types"
)

// Classic implements spec.md §4.4.3: the ring buffer's resident audio is
// sent to the Worker Pool as a single request. The archival WAV file is
// not read, so audio the ring buffer has already evicted is not sent.
type Classic struct {
	pool Transcriber
	buf  *ringbuffer.Buffer

	startedAt time.Time
	result    *PartialResult
}

// NewClassic builds a Classic strategy reading from buf's resident
// window at Finish time.
func NewClassic(pool Transcriber, buf *ringbuffer.Buffer) *Classic {
	return &Classic{pool: pool, buf: buf}
}

func (c *Classic) Name() string { return "classic" }

func (c *Classic) Start(ctx context.Context) error {
	c.startedAt = time.Now()
	return nil
}

// Finish extracts the entire resident window and sends it as one
// chunk. A session no longer than the ring buffer's 5 minute resident
// cap is sent whole; for a longer one only the most recent 5 minutes are
// sent, and the evicted start is not re-read from the archival file.
func (c *Classic) Finish(ctx context.Context) (Result, error) {
	spec := c.buf.Spec()
	frames := c.buf.TotalSamplesWritten() / uint64(spec.Channels)
	total := time.Duration(float64(frames) / float64(spec.SampleRate) * float64(time.Second))
	samples, err := c.buf.ExtractChunk(0, total)
	if err != nil {
		return Result{}, err
	}
	chunk := types.NewAudioChunk(samples, spec.SampleRate, spec.Channels)

	transcript, err := c.pool.Transcribe(ctx, chunk)
	if err != nil {
		return Result{}, err
	}

	c.result = &PartialResult{ChunkID: 0, Text: transcript.Text, ProcessingTimeMS: time.Since(c.startedAt).Milliseconds()}

	return Result{
		Text:             transcript.Text,
		ProcessingTimeMS: time.Since(c.startedAt).Milliseconds(),
		StrategyName:     "classic",
		ChunksProcessed:  1,
	}, nil
}

func (c *Classic) PartialResults() []PartialResult {
	if c.result == nil {
		return nil
	}
	return []PartialResult{*c.result}
}
