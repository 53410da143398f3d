package types

import "errors"

// Error tags per spec.md §7. These are stable machine-readable codes, not
// type names — callers compare with errors.Is against the sentinels below,
// and workers/transports report the string code over the wire.
const (
	CodeDeviceNotFound     = "DEVICE_NOT_FOUND"
	CodeNoDeviceInfo       = "NO_DEVICE_INFO"
	CodeUnsupportedFormat  = "UNSUPPORTED_FORMAT"
	CodeStreamOpenFailed   = "STREAM_OPEN_FAILED"
	CodeFileCreateFailed   = "FILE_CREATE_FAILED"
	CodeWriteFailed        = "WRITE_FAILED"
	CodeFinalizeFailed     = "FINALIZE_FAILED"
	CodeStrategyInitFailed = "STRATEGY_INIT_FAILED"
	CodeChunkBeyondRange   = "CHUNK_BEYOND_RANGE"
	CodeWorkerCrash        = "WORKER_CRASH"
	CodeWorkerTimeout      = "TIMEOUT"
	CodeNoWorkers          = "NO_WORKERS"
	CodeTranscriptionFail  = "TRANSCRIPTION_FAILED"
	CodeSessionBusy        = "SESSION_BUSY"
	CodeSessionNotActive   = "SESSION_NOT_ACTIVE"
)

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrNoDeviceInfo       = errors.New("no device info available and emergency probe failed")
	ErrUnsupportedFormat  = errors.New("unsupported sample format")
	ErrStreamOpenFailed   = errors.New("failed to open input stream")
	ErrFileCreateFailed   = errors.New("failed to create archival file")
	ErrWriteFailed        = errors.New("failed to write archival audio")
	ErrFinalizeFailed     = errors.New("failed to finalize archival file")
	ErrStrategyInitFailed = errors.New("strategy initialization failed")
	ErrChunkBeyondRange   = errors.New("requested range exceeds written samples")
	ErrWorkerCrash        = errors.New("worker process crashed")
	ErrWorkerTimeout      = errors.New("worker response timed out")
	ErrNoWorkers          = errors.New("no healthy workers available")
	ErrTranscriptionFail  = errors.New("worker returned a transcription error")
	ErrSessionBusy        = errors.New("session is not idle")
	ErrSessionNotActive   = errors.New("session is not active")
)

// CodeFor maps an error to its stable wire code: a *TranscriptionError
// reports its own Code, a tagged sentinel maps to its tag, and anything
// unrecognized falls back to TRANSCRIPTION_FAILED.
func CodeFor(err error) string {
	var te *TranscriptionError
	if errors.As(err, &te) && te.Code != "" {
		return te.Code
	}
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		return CodeDeviceNotFound
	case errors.Is(err, ErrNoDeviceInfo):
		return CodeNoDeviceInfo
	case errors.Is(err, ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case errors.Is(err, ErrStreamOpenFailed):
		return CodeStreamOpenFailed
	case errors.Is(err, ErrFileCreateFailed):
		return CodeFileCreateFailed
	case errors.Is(err, ErrWriteFailed):
		return CodeWriteFailed
	case errors.Is(err, ErrFinalizeFailed):
		return CodeFinalizeFailed
	case errors.Is(err, ErrStrategyInitFailed):
		return CodeStrategyInitFailed
	case errors.Is(err, ErrChunkBeyondRange):
		return CodeChunkBeyondRange
	case errors.Is(err, ErrWorkerCrash):
		return CodeWorkerCrash
	case errors.Is(err, ErrWorkerTimeout):
		return CodeWorkerTimeout
	case errors.Is(err, ErrNoWorkers):
		return CodeNoWorkers
	case errors.Is(err, ErrSessionBusy):
		return CodeSessionBusy
	case errors.Is(err, ErrSessionNotActive):
		return CodeSessionNotActive
	default:
		return CodeTranscriptionFail
	}
}
