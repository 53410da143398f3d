package types

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptMetadata carries optional ASR and pipeline context for a
// Transcript record.
type TranscriptMetadata struct {
	Language         string
	ProcessingTimeMS int64
	ModelName        string
	Extra            map[string]string
}

// Transcript is the recognized-text result for one AudioChunk (or, for the
// Classic strategy, for the ring buffer's whole resident window).
type Transcript struct {
	ID         uuid.UUID
	Text       string
	Confidence float32
	Timestamp  time.Time
	Metadata   TranscriptMetadata
}

// TranscriptionError carries the originating chunk id so the caller can
// correlate a worker failure with its request.
type TranscriptionError struct {
	ID        uuid.UUID
	Message   string
	Code      string
	Timestamp time.Time
}

func (e *TranscriptionError) Error() string {
	return e.Message
}

// NewTranscriptionError builds a tagged error for the given chunk id.
func NewTranscriptionError(id uuid.UUID, code, message string) *TranscriptionError {
	return &TranscriptionError{
		ID:        id,
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}
