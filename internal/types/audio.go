// Package types holds the data records shared across every pipeline stage:
// audio formats and chunks, transcripts, errors, and session progress.
package types

import (
	"time"

	"github.com/google/uuid"
)

// SampleFormat is the native PCM representation a device reports.
type SampleFormat string

const (
	SampleFormatF32 SampleFormat = "f32"
	SampleFormatI16 SampleFormat = "i16"
	// SampleFormatU16 is reported by some devices but never accepted by the
	// Capture Engine; it exists here only so Start() can reject it by name.
	SampleFormatU16 SampleFormat = "u16"
)

// BitsPerSample returns the WAV container bit depth for the format.
func (f SampleFormat) BitsPerSample() int {
	switch f {
	case SampleFormatF32:
		return 32
	case SampleFormatI16, SampleFormatU16:
		return 16
	default:
		return 0
	}
}

// AudioFormat is the immutable tuple established when a capture session
// opens. It is never mutated for the lifetime of the session.
type AudioFormat struct {
	SampleRate uint32
	Channels   uint16
	Format     SampleFormat
}

// AudioChunk is a timestamped, identified block of mono-normalized PCM
// audio destined for a transcription worker.
type AudioChunk struct {
	ID         uuid.UUID
	Samples    []float32
	SampleRate uint32
	Channels   uint16
	Timestamp  time.Time
	Metadata   map[string]string
}

// NewAudioChunk builds a chunk with a fresh ID and creation timestamp.
func NewAudioChunk(samples []float32, sampleRate uint32, channels uint16) AudioChunk {
	return AudioChunk{
		ID:         uuid.New(),
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
		Timestamp:  time.Now(),
	}
}
