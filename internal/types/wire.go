package types

import "time"

// Wire structs are the MessagePack-framed payloads exchanged with
// out-of-process transcription workers (spec.md §6). They are deliberately
// flat and decoupled from the in-process AudioChunk/Transcript records so
// the wire format can evolve without touching pipeline internals.

// WireAudioChunk is sent worker-pool -> worker on the push channel.
type WireAudioChunk struct {
	ID         string            `msgpack:"id"`
	Samples    []float32         `msgpack:"samples"`
	SampleRate uint32            `msgpack:"sample_rate"`
	Channels   uint16            `msgpack:"channels"`
	Seq        uint64            `msgpack:"seq"`
	Metadata   map[string]string `msgpack:"metadata,omitempty"`
}

// WireTranscript is returned worker -> worker-pool on success.
type WireTranscript struct {
	ID               string `msgpack:"id"`
	Text             string `msgpack:"text"`
	Confidence       float32 `msgpack:"confidence"`
	ProcessingTimeMS int64  `msgpack:"processing_time_ms"`
	ModelName        string `msgpack:"model_name,omitempty"`
}

// WireTranscriptionError is returned worker -> worker-pool on failure.
type WireTranscriptionError struct {
	ID      string `msgpack:"id"`
	Code    string `msgpack:"code"`
	Message string `msgpack:"message"`
}

// WireWorkerStatus is sent periodically worker -> worker-pool on the
// control channel as a heartbeat.
type WireWorkerStatus struct {
	WorkerID  string `msgpack:"worker_id"`
	Healthy   bool   `msgpack:"healthy"`
	QueueLen  int    `msgpack:"queue_len"`
	Timestamp int64  `msgpack:"timestamp"`
}

// WireEnvelope wraps every frame with a type discriminator so a single
// length-prefixed stream can carry chunks, transcripts, errors, and status
// without a side channel. Exactly one of the payload fields is non-nil.
type WireEnvelope struct {
	Type      string                   `msgpack:"type"`
	Chunk     *WireAudioChunk          `msgpack:"chunk,omitempty"`
	Transcript *WireTranscript         `msgpack:"transcript,omitempty"`
	Error     *WireTranscriptionError  `msgpack:"error,omitempty"`
	Status    *WireWorkerStatus        `msgpack:"status,omitempty"`
}

const (
	WireTypeChunk      = "chunk"
	WireTypeTranscript = "transcript"
	WireTypeError      = "error"
	WireTypeStatus     = "status"
)

// NowMillis is a small helper kept local to the wire package boundary so
// transports don't reach into time.Now formatting conventions ad hoc.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
