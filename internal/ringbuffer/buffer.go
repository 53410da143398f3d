// Package ringbuffer implements the bounded window over a session's
// mono-normalized sample stream described in spec.md §4.3: the
// synchronization point between the audio callback thread (producer)
// and the chunk scheduler (consumer). The sliding window is backed by
// github.com/smallnest/ringbuffer's byte-oriented circular buffer; this
// package adds sample-aligned accounting, eviction-on-overflow, and the
// side-channel archival WAV writer the contract requires.
package ringbuffer

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/rbright/scout/internal/types"
	"github.com/rbright/scout/internal/wav"
)

const (
	capDuration  = 5 * time.Minute
	bytesPerSample = 4 // all resident samples are float32
)

// ErrFinalized is returned by AddSamples once Finalize has run.
var ErrFinalized = errors.New("ringbuffer: finalized")

// Buffer implements spec.md §4.3.
type Buffer struct {
	mu sync.Mutex

	spec types.AudioFormat
	cap  uint64 // resident capacity, in interleaved samples

	store *ringbuffer.RingBuffer

	totalWritten  uint64 // monotone, includes evicted samples
	residentStart uint64 // sample index of the oldest resident sample

	startInstant time.Time
	finalized    bool

	writer *wav.Writer
}

// New creates the file-backed archival writer and a resident window sized
// to 5 minutes of audio at the given format.
func New(spec types.AudioFormat, filePath string) (*Buffer, error) {
	capSamples := uint64(capDuration.Seconds()) * uint64(spec.SampleRate) * uint64(spec.Channels)
	if capSamples == 0 {
		return nil, fmt.Errorf("ringbuffer: invalid spec %+v", spec)
	}

	var writer *wav.Writer
	if filePath != "" {
		w, err := wav.Create(filePath, spec.SampleRate, spec.Channels, wav.FormatFloat32)
		if err != nil {
			return nil, fmt.Errorf("ringbuffer: %w: %v", types.ErrFileCreateFailed, err)
		}
		writer = w
	}

	return &Buffer{
		spec:         spec,
		cap:          capSamples,
		store:        ringbuffer.New(int(capSamples) * bytesPerSample),
		startInstant: time.Now(),
		writer:       writer,
	}, nil
}

// AddSamples is the producer-side append. If the append would exceed cap,
// the oldest resident frames are evicted first. The same samples are
// always written to the archival WAV (which is never capped). The
// critical section here is a single mutex-guarded memmove plus a
// library Write/Read pair — short enough to not jeopardize a 10ms audio
// callback deadline.
func (b *Buffer) AddSamples(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return ErrFinalized
	}

	payload := float32ToBytes(samples)

	if len(payload) > b.store.Capacity() {
		// A single batch larger than the whole window: keep only its tail.
		b.store.Reset()
		keep := payload[len(payload)-b.store.Capacity():]
		if _, err := b.store.Write(keep); err != nil {
			return fmt.Errorf("ringbuffer: write: %w", err)
		}
		b.residentStart = b.totalWritten + uint64(len(samples)) - uint64(len(keep))/bytesPerSample
	} else {
		if free := b.store.Free(); free < len(payload) {
			discard := len(payload) - free
			drain := make([]byte, discard)
			if _, err := b.store.Read(drain); err != nil {
				return fmt.Errorf("ringbuffer: evict: %w", err)
			}
			b.residentStart += uint64(discard) / bytesPerSample
		}
		if _, err := b.store.Write(payload); err != nil {
			return fmt.Errorf("ringbuffer: write: %w", err)
		}
	}

	b.totalWritten += uint64(len(samples))

	if b.writer != nil {
		if err := b.writer.WriteFloat32(samples); err != nil {
			return fmt.Errorf("ringbuffer: %w: %v", types.ErrWriteFailed, err)
		}
	}
	return nil
}

// ExtractChunk returns a copy of the samples covering [startOffset,
// startOffset+duration), clipped to what is still resident. It errors if
// startOffset is beyond total_samples_written.
func (b *Buffer) ExtractChunk(startOffset, duration time.Duration) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	framesPerSec := float64(b.spec.SampleRate)
	startFrame := uint64(math.Round(startOffset.Seconds() * framesPerSec))
	endFrame := uint64(math.Round((startOffset + duration).Seconds() * framesPerSec))

	startSample := startFrame * uint64(b.spec.Channels)
	endSample := endFrame * uint64(b.spec.Channels)

	if startSample > b.totalWritten {
		return nil, fmt.Errorf("ringbuffer: %w: start=%d total=%d", types.ErrChunkBeyondRange, startSample, b.totalWritten)
	}
	if startSample < b.residentStart {
		startSample = b.residentStart
	}
	if endSample > b.totalWritten {
		endSample = b.totalWritten
	}
	if endSample <= startSample {
		return []float32{}, nil
	}

	snapshot := b.store.Bytes()
	offset := (startSample - b.residentStart) * bytesPerSample
	length := (endSample - startSample) * bytesPerSample
	if offset+length > uint64(len(snapshot)) {
		length = uint64(len(snapshot)) - offset
	}
	return bytesToFloat32(snapshot[offset : offset+length]), nil
}

// SaveChunkToFile writes samples as an independent mono 16-bit int WAV at
// the session's sample rate, per spec.md §6's chunk-file format.
func (b *Buffer) SaveChunkToFile(samples []float32, path string) error {
	w, err := wav.Create(path, b.spec.SampleRate, 1, wav.FormatInt16)
	if err != nil {
		return fmt.Errorf("ringbuffer: %w: %v", types.ErrFileCreateFailed, err)
	}
	i16 := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		i16[i] = int16(v)
	}
	if err := w.WriteInt16(i16); err != nil {
		w.Abort() //nolint:errcheck
		return fmt.Errorf("ringbuffer: %w: %v", types.ErrWriteFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("ringbuffer: %w: %v", types.ErrFinalizeFailed, err)
	}
	return nil
}

// Finalize is idempotent: it finishes the archival WAV; subsequent
// AddSamples calls fail with ErrFinalized.
func (b *Buffer) Finalize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return nil
	}
	b.finalized = true
	if b.writer != nil {
		if err := b.writer.Close(); err != nil {
			return fmt.Errorf("ringbuffer: %w: %v", types.ErrFinalizeFailed, err)
		}
	}
	return nil
}

// Clear drops buffered samples (used on cancel) and discards the
// archival file rather than finalizing it.
func (b *Buffer) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store.Reset()
	b.residentStart = b.totalWritten
	if b.writer != nil && !b.finalized {
		b.finalized = true
		return b.writer.Abort()
	}
	return nil
}

// SampleCount reports the number of samples currently resident (not the
// monotone total_samples_written).
func (b *Buffer) SampleCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalWritten - b.residentStart
}

// TotalSamplesWritten reports the monotone counter, unaffected by eviction.
func (b *Buffer) TotalSamplesWritten() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalWritten
}

// Duration reports the resident window's wall-clock duration.
func (b *Buffer) Duration() time.Duration {
	frames := b.SampleCount() / uint64(b.spec.Channels)
	return time.Duration(float64(frames) / float64(b.spec.SampleRate) * float64(time.Second))
}

func (b *Buffer) IsFinalized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized
}

func (b *Buffer) Spec() types.AudioFormat { return b.spec }

func (b *Buffer) StartInstant() time.Time { return b.startInstant }

func float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		bits := math.Float32bits(s)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

func bytesToFloat32(b []byte) []float32 {
	n := len(b) / bytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
