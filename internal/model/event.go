package model

import "time"

type EventType string

const (
	EventStarted   EventType = "started"
	EventLog       EventType = "log"
	EventProgress  EventType = "progress"
	EventComplete  EventType = "complete"
	EventMounted   EventType = "mounted"
	EventUnmounted EventType = "unmounted"
)

// Event is the single payload type flowing from a run (or the volume
// watcher) to subscribers. Exactly one of the optional fields is set,
// matching Type.
type Event struct {
	Seq        int64          `json:"seq"`
	Type       EventType      `json:"type"`
	JobID      string         `json:"jobId"`
	RunID      string         `json:"runId,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Message    string         `json:"message,omitempty"`
	Progress   *ProgressEvent `json:"progress,omitempty"`
	Completion *Completion    `json:"completion,omitempty"`
	Path       string         `json:"path,omitempty"`
}

// ProgressEvent is ephemeral; it is streamed and never persisted.
// Nil speed/eta mean unknown, not zero.
type ProgressEvent struct {
	JobID            string   `json:"jobId"`
	TransferredBytes int64    `json:"transferredBytes"`
	Percentage       int      `json:"percentage"`
	SpeedBytesPerSec *float64 `json:"speedBytesPerSec,omitempty"`
	ETASeconds       *int     `json:"etaSeconds,omitempty"`
	CurrentFile      string   `json:"currentFile,omitempty"`
}

type Completion struct {
	Success bool           `json:"success"`
	Code    CompletionCode `json:"code,omitempty"`
	Error   string         `json:"error,omitempty"`
}
