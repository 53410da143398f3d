package workerpool

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rbright/scout/internal/types"
)

// transport is the wire-level contract a worker speaks, isolating the pool
// and worker lifecycle from the specific framing in spec.md §6. A single
// in-flight exchange per worker mirrors the worker record's
// in_flight:optional(chunk_id,deadline) field — round-robin dispatch never
// hands a second chunk to a worker until the first returns.
type transport interface {
	// transcribe sends chunk and blocks for the matching response, honoring
	// ctx's deadline.
	transcribe(ctx context.Context, chunk types.AudioChunk) (types.Transcript, error)
	// heartbeat exchanges a no-op frame to confirm the worker is alive.
	heartbeat(ctx context.Context) error
	close() error
}

// writeFrame writes one length-prefixed MessagePack frame: a 4-byte
// little-endian length followed by that many payload bytes, written in a
// single buffered call so a partial frame is never observed mid-write.
func writeFrame(w io.Writer, env types.WireEnvelope) error {
	payload, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("workerpool: encode frame: %w", err)
	}
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err = w.Write(buf)
	return err
}

// readFrame reads one length-prefixed MessagePack frame. A short read on
// either the length prefix or the payload is a fatal worker error per
// spec.md §9 ("partial frames on stdio are a fatal worker error").
func readFrame(r io.Reader) (types.WireEnvelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return types.WireEnvelope{}, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return types.WireEnvelope{}, fmt.Errorf("workerpool: partial frame: %w", err)
	}
	var env types.WireEnvelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return types.WireEnvelope{}, fmt.Errorf("workerpool: decode frame: %w", err)
	}
	return env, nil
}

func wireChunk(chunk types.AudioChunk) *types.WireAudioChunk {
	return &types.WireAudioChunk{
		ID:         chunk.ID.String(),
		Samples:    chunk.Samples,
		SampleRate: chunk.SampleRate,
		Channels:   chunk.Channels,
		Metadata:   chunk.Metadata,
	}
}

func fromWireTranscript(w *types.WireTranscript) types.Transcript {
	id, _ := parseUUID(w.ID)
	return types.Transcript{
		ID:         id,
		Text:       w.Text,
		Confidence: w.Confidence,
		Timestamp:  time.Now(),
		Metadata: types.TranscriptMetadata{
			ModelName:        w.ModelName,
			ProcessingTimeMS: w.ProcessingTimeMS,
		},
	}
}

func fromWireError(w *types.WireTranscriptionError) *types.TranscriptionError {
	id, _ := parseUUID(w.ID)
	return types.NewTranscriptionError(id, w.Code, w.Message)
}
