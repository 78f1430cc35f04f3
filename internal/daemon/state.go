package daemon

import (
	"fmt"
	"sync"
	"time"

	"amber/internal/model"
)

// RunState owns the lifecycle of a single run:
// IDLE → RUNNING → SUCCESS | FAILED.
type RunState struct {
	mu           sync.RWMutex
	run          model.JobRun
	lastProgress *model.ProgressEvent
}

func NewRunState(job model.Job, runID string) *RunState {
	return &RunState{
		run: model.JobRun{
			RunID:  runID,
			JobID:  job.ID,
			Mode:   job.Mode,
			Status: model.StatusIdle,
		},
	}
}

func isValidTransition(from, to model.JobStatus) bool {
	switch from {
	case model.StatusIdle:
		return to == model.StatusRunning
	case model.StatusRunning:
		return to == model.StatusSuccess || to == model.StatusFailed
	default:
		return false
	}
}

// Start moves the run to RUNNING.
func (s *RunState) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !isValidTransition(s.run.Status, model.StatusRunning) {
		return fmt.Errorf("invalid transition: %s -> %s", s.run.Status, model.StatusRunning)
	}
	s.run.Status = model.StatusRunning
	s.run.StartedAt = time.Now()
	return nil
}

// Observe records a progress event. Observation never changes state.
func (s *RunState) Observe(ev model.Event) {
	if ev.Type != model.EventProgress || ev.Progress == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run.Status == model.StatusRunning {
		s.lastProgress = ev.Progress
	}
}

// Complete moves a RUNNING run to its terminal state.
func (s *RunState) Complete(c model.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	to := model.StatusFailed
	if c.Success {
		to = model.StatusSuccess
	}
	if !isValidTransition(s.run.Status, to) {
		return fmt.Errorf("invalid transition: %s -> %s", s.run.Status, to)
	}

	s.run.Status = to
	s.run.EndedAt = new(time.Now())
	s.run.Error = c.Error
	s.run.Code = c.Code
	return nil
}

func (s *RunState) Status() model.JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.Status
}

func (s *RunState) Snapshot() model.JobRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

func (s *RunState) LastProgress() *model.ProgressEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastProgress
}
