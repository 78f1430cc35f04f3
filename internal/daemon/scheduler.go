package daemon

import (
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"amber/internal/logger"
	"amber/internal/model"
	"amber/internal/repository"
)

// Scheduler fires backup runs on each job's cron expression. It sits
// on top of the manager: a tick is just a StartJob call, so the
// single-active-run rule still holds and a tick that lands while the
// job is running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	jobs    *repository.JobRepository

	mu      sync.Mutex
	entries map[string]cron.EntryID
	byID    map[string]model.Job
}

func NewScheduler(manager *Manager, jobs *repository.JobRepository) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		manager: manager,
		jobs:    jobs,
		entries: make(map[string]cron.EntryID),
		byID:    make(map[string]model.Job),
	}
}

// Start registers every stored job that carries a schedule and begins
// firing them.
func (s *Scheduler) Start() error {
	all, err := s.jobs.GetAll()
	if err != nil {
		return err
	}
	for _, job := range all {
		if !job.Scheduled() {
			continue
		}
		if err := s.Add(job); err != nil {
			logger.Log.Warn("job has unparseable schedule, skipping",
				zap.String("job", job.ID),
				zap.Error(err))
		}
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Add registers a job's schedule, replacing any previous entry for
// the same job id.
func (s *Scheduler) Add(job model.Job) error {
	if !job.Scheduled() {
		s.Remove(job.ID)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[job.ID]; ok {
		s.cron.Remove(id)
	}
	entryID, err := s.cron.AddFunc(job.Schedule, func() { s.fire(job) })
	if err != nil {
		return err
	}
	s.entries[job.ID] = entryID
	s.byID[job.ID] = job
	return nil
}

// Remove unregisters a job's schedule. Removing an unscheduled job is
// a no-op.
func (s *Scheduler) Remove(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[jobID]; ok {
		s.cron.Remove(id)
		delete(s.entries, jobID)
		delete(s.byID, jobID)
	}
}

// NextRun reports when a job's schedule fires next.
func (s *Scheduler) NextRun(jobID string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[jobID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	entry := s.cron.Entry(id)
	if entry.ID != id || entry.Next.IsZero() {
		return time.Time{}, false
	}
	return entry.Next, true
}

// OnMount starts every scheduled job whose destination lives under
// the newly mounted path, so a backup drive starts catching up as
// soon as it is plugged in. Destinations that are still inaccessible
// and jobs already running are skipped. Returns the ids of the jobs
// it started.
func (s *Scheduler) OnMount(mountPath string) []string {
	s.mu.Lock()
	var candidates []model.Job
	for _, job := range s.byID {
		if strings.HasPrefix(job.Dest, mountPath) {
			candidates = append(candidates, job)
		}
	}
	s.mu.Unlock()

	var started []string
	for _, job := range candidates {
		if _, err := os.Stat(job.Dest); err != nil {
			continue
		}
		runID, err := s.manager.StartJob(job)
		if err != nil {
			if _, ok := errors.AsType[*model.JobAlreadyRunningError](err); !ok {
				logger.Log.Error("mount-triggered run failed to start",
					zap.String("job", job.ID),
					zap.Error(err))
			}
			continue
		}
		logger.Log.Info("mount-triggered run started",
			zap.String("job", job.ID),
			zap.String("run", runID),
			zap.String("mount", mountPath))
		started = append(started, job.ID)
	}
	sort.Strings(started)
	return started
}

func (s *Scheduler) fire(job model.Job) {
	runID, err := s.manager.StartJob(job)
	if err != nil {
		if _, ok := errors.AsType[*model.JobAlreadyRunningError](err); ok {
			logger.Log.Debug("scheduled tick skipped, job already running",
				zap.String("job", job.ID))
			return
		}
		logger.Log.Error("scheduled run failed to start",
			zap.String("job", job.ID),
			zap.Error(err))
		return
	}
	logger.Log.Info("scheduled run started",
		zap.String("job", job.ID),
		zap.String("run", runID))
}
