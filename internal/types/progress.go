package types

import (
	"time"

	"github.com/google/uuid"
)

// ProgressPhase is the tag of the Progress sum type reported to IPC callers
// and session subscribers. Transitions must be monotone: once Completed or
// Failed is observed for a session id, no further phase for that id follows.
type ProgressPhase string

const (
	ProgressIdle         ProgressPhase = "idle"
	ProgressRecording    ProgressPhase = "recording"
	ProgressStopping     ProgressPhase = "stopping"
	ProgressTranscribing ProgressPhase = "transcribing"
	ProgressCompleted    ProgressPhase = "completed"
	ProgressFailed       ProgressPhase = "failed"
)

// Progress is a tagged union over the session lifecycle. Only the fields
// relevant to Phase are populated; the rest are zero.
type Progress struct {
	Phase       ProgressPhase
	SessionID   uuid.UUID
	Filename    string
	StartTimeMS int64
	Transcript  *Transcript
	Message     string
	Code        string
}

// IdleProgress is the terminal, restful state before any recording starts.
func IdleProgress() Progress {
	return Progress{Phase: ProgressIdle}
}

// RecordingProgress reports an archival file actively being written.
func RecordingProgress(id uuid.UUID, filename string, startTimeMS int64) Progress {
	return Progress{
		Phase:       ProgressRecording,
		SessionID:   id,
		Filename:    filename,
		StartTimeMS: startTimeMS,
	}
}

// StoppingProgress reports capture has been asked to halt but the archival
// file has not yet been finalized.
func StoppingProgress(id uuid.UUID, filename string) Progress {
	return Progress{Phase: ProgressStopping, SessionID: id, Filename: filename}
}

// TranscribingProgress reports the recording is closed and awaiting worker
// results.
func TranscribingProgress(id uuid.UUID) Progress {
	return Progress{Phase: ProgressTranscribing, SessionID: id}
}

// CompletedProgress carries the assembled transcript for a finished session.
func CompletedProgress(id uuid.UUID, transcript Transcript) Progress {
	return Progress{Phase: ProgressCompleted, SessionID: id, Transcript: &transcript}
}

// FailedProgress carries the tagged error code and message for a session
// that could not complete.
func FailedProgress(id uuid.UUID, code, message string) Progress {
	return Progress{Phase: ProgressFailed, SessionID: id, Code: code, Message: message}
}

// RecordingSession is the durable record of one session attempt, tracked by
// the session manager for status/history queries.
type RecordingSession struct {
	ID        uuid.UUID
	Filename  string
	StartedAt time.Time
	EndedAt   time.Time
	Strategy  string
	Progress  Progress
}
