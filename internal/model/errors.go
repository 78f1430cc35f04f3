package model

import "fmt"

// ProcessSpawnError means the start request itself failed; the job
// never left its prior state.
type ProcessSpawnError struct {
	JobID  string
	Reason string
	Err    error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("failed to spawn transfer process for job %s: %s", e.JobID, e.Reason)
}

func (e *ProcessSpawnError) Unwrap() error { return e.Err }

type JobAlreadyRunningError struct {
	JobID string
}

func (e *JobAlreadyRunningError) Error() string {
	return fmt.Sprintf("job %s is already running", e.JobID)
}

// InvalidCommitError is a contract violation: committing a run that is
// not a successful TIME_MACHINE run.
type InvalidCommitError struct {
	Reason string
}

func (e *InvalidCommitError) Error() string {
	return fmt.Sprintf("invalid snapshot commit: %s", e.Reason)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job: %s %s", e.Field, e.Reason)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
