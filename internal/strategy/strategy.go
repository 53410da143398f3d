// Package strategy implements the pluggable policies described in
// spec.md §4.4: turning one capture session's audio into one or more
// transcripts via the Worker Pool. Classic sends the ring buffer's
// resident audio (at most its last 5 minutes) as a single request;
// Ring-Buffer-Chunked slices the shared
// ring buffer into fixed-size chunks dispatched as they become
// available; Native Streaming maintains its own resampled circular
// buffer fed directly by the session's sample forwarder.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rbright/scout/internal/ringbuffer"
	"github.com/rbright/scout/internal/types"
)

// Kind selects which strategy the Session Manager constructs at start().
type Kind string

const (
	KindClassic            Kind = "classic"
	KindRingBufferChunked  Kind = "ring_buffer_chunked"
	KindNativeStreaming    Kind = "native_streaming"
)

// Config holds the tunables spec.md §4.4.1/§4.4.2 list with defaults.
type Config struct {
	ChunkDuration       time.Duration
	Overlap             time.Duration
	MinChunk            time.Duration
	MaxBufferedDuration time.Duration
	ChunkTimeout        time.Duration // end-to-end deadline per chunk before Classic fallback
	StreamingSampleRate uint32
	ChunkDir            string // optional: where chunk WAVs are saved, empty disables
}

// DefaultConfig matches the defaults in spec.md §4.4.1/§4.4.2.
func DefaultConfig() Config {
	return Config{
		ChunkDuration:       5 * time.Second,
		Overlap:             0,
		MinChunk:            2 * time.Second,
		MaxBufferedDuration: 12 * time.Second,
		ChunkTimeout:        45 * time.Second,
		StreamingSampleRate: 16000,
	}
}

// Result is what Finish returns: the assembled transcript plus the
// bookkeeping the Session Manager folds into a Transcript's metadata.
type Result struct {
	Text             string
	ProcessingTimeMS int64
	StrategyName     string
	ChunksProcessed  int
	FallbackUsed     bool
}

// PartialResult is one chunk's contribution, surfaced to callers that
// want incremental feedback (native streaming) or post-hoc inspection
// (ring-buffer-chunked, for the stitching invariant).
type PartialResult struct {
	ChunkID          int
	Text             string
	StartTime        time.Duration
	ProcessingTimeMS int64
	IsPartial        bool
}

// Transcriber is the subset of workerpool.Pool the strategies need. It
// is declared here, not imported from the workerpool package, so
// strategies can be tested against fakes without a transport.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk types.AudioChunk) (Transcript, error)
}

// Transcript is an alias of types.Transcript, so concrete callers
// (workerpool.Pool) satisfy Transcriber directly.
type Transcript = types.Transcript

// Strategy is, besides Name, the three-method contract spec.md's design
// notes call for: Start to begin, Finish to assemble the final transcript, and
// PartialResults for inspection while running.
type Strategy interface {
	Name() string
	Start(ctx context.Context) error
	Finish(ctx context.Context) (Result, error)
	PartialResults() []PartialResult
}

// SampleFeeder is implemented by strategies that need samples pushed
// directly (native streaming) rather than pulled from a shared ring
// buffer (classic, ring-buffer-chunked).
type SampleFeeder interface {
	FeedSamples(samples []float32)
}

// Canceller is implemented by strategies that hold background workers
// needing teardown without assembling a final transcript (spec.md §4.6
// cancel(): "abort the strategy"). Strategies without background work
// (Classic) don't need it.
type Canceller interface {
	Cancel()
}

// RequiresRingBuffer reports whether a strategy Kind is driven by the
// shared ring buffer (classic, ring-buffer-chunked) as opposed to
// maintaining its own internal buffer fed via SampleFeeder (streaming).
func (k Kind) RequiresRingBuffer() bool {
	return k != KindNativeStreaming
}

// New builds the strategy named by kind. buf is required unless kind is
// KindNativeStreaming, in which case it is ignored. callback is only
// consulted for KindNativeStreaming.
func New(kind Kind, pool Transcriber, buf *ringbuffer.Buffer, cfg Config, callback func(PartialResult)) (Strategy, error) {
	switch kind {
	case KindClassic:
		return NewClassic(pool, buf), nil
	case KindRingBufferChunked:
		return NewChunked(pool, buf, cfg), nil
	case KindNativeStreaming:
		return NewStreaming(pool, cfg, callback), nil
	default:
		return nil, fmt.Errorf("strategy: unknown kind %q", kind)
	}
}

// stitch joins chunk texts in chunk_id order, trimming and dropping
// empties, per spec.md §4.4.1's canonical stitching algorithm. When
// overlap > 0, a simple longest-common-prefix suppression is applied
// between each chunk and the one before it.
func stitch(results []PartialResult, overlap bool) string {
	out := ""
	prev := ""
	for _, r := range results {
		text := trimSpace(r.Text)
		if text == "" {
			continue
		}
		if overlap && prev != "" {
			text = dropLCP(prev, text)
		}
		if text == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += text
		prev = r.Text
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

// dropLCP removes from cur the longest prefix that equals a suffix of
// prev, a cheap de-dup for overlapping chunk windows.
func dropLCP(prev, cur string) string {
	maxK := len(prev)
	if len(cur) < maxK {
		maxK = len(cur)
	}
	for k := maxK; k > 0; k-- {
		if prev[len(prev)-k:] == cur[:k] {
			return trimSpace(cur[k:])
		}
	}
	return cur
}
