package model

import "time"

type JobStatus string

const (
	StatusIdle    JobStatus = "IDLE"
	StatusRunning JobStatus = "RUNNING"
	StatusSuccess JobStatus = "SUCCESS"
	StatusFailed  JobStatus = "FAILED"
)

// CompletionCode classifies how a run ended. The human-readable error
// string travels alongside it; the code is the stable contract.
type CompletionCode string

const (
	CodeNone        CompletionCode = ""
	CodeSpawnFailed CompletionCode = "spawn_failed"
	CodeExitNonzero CompletionCode = "exit_nonzero"
	CodeCancelled   CompletionCode = "cancelled"
	CodeStalled     CompletionCode = "stalled"
	CodeTimeout     CompletionCode = "timeout"
	CodeIOError     CompletionCode = "io_error"
)

// JobRun is one execution of a Job. IDLE runs are never persisted;
// RUNNING runs live only in the registry.
type JobRun struct {
	RunID     string         `gorm:"primaryKey" json:"runId"`
	JobID     string         `gorm:"index;not null" json:"jobId"`
	Mode      SyncMode       `json:"mode"`
	Status    JobStatus      `gorm:"not null" json:"status"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   *time.Time     `json:"endedAt,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      CompletionCode `json:"code,omitempty"`
}
