package daemon

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"amber/internal/config"
	"amber/internal/history"
	"amber/internal/logger"
	"amber/internal/model"
	"amber/internal/rsync"
)

// ProcessHandle is one live transfer process as the manager sees it.
type ProcessHandle interface {
	Events() <-chan model.Event
	Kill()
	SnapshotDir() string
}

// ProcessSpawner starts transfer processes. The rsync runner is the
// production implementation; tests substitute doubles.
type ProcessSpawner interface {
	Start(job model.Job, runID string) (ProcessHandle, error)
}

type rsyncSpawner struct {
	runner *rsync.Runner
}

func (s rsyncSpawner) Start(job model.Job, runID string) (ProcessHandle, error) {
	h, err := s.runner.Start(job, runID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// NewRsyncSpawner wraps the rsync runner as a ProcessSpawner.
func NewRsyncSpawner(r *rsync.Runner) ProcessSpawner {
	return rsyncSpawner{runner: r}
}

type activeRun struct {
	job   model.Job
	state *RunState

	mu          sync.Mutex
	handle      ProcessHandle
	pendingKill bool
	killCode    model.CompletionCode
	killError   string

	lastActivity atomic.Int64
	stopWatch    chan struct{}
}

// kill terminates the run, remembering why so the terminal event can
// carry the right code (cancelled, stalled, timeout).
func (ar *activeRun) kill(code model.CompletionCode, errMsg string) {
	ar.mu.Lock()
	if ar.killCode == model.CodeNone {
		ar.killCode = code
		ar.killError = errMsg
	}
	h := ar.handle
	if h == nil {
		ar.pendingKill = true
	}
	ar.mu.Unlock()

	if h != nil {
		h.Kill()
	}
}

func (ar *activeRun) killReason() (model.CompletionCode, string) {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	return ar.killCode, ar.killError
}

// Manager is the job registry and orchestrator: it enforces at most
// one running process per job id, supervises each run's event stream,
// applies the stall/timeout policy and commits TIME_MACHINE successes
// to the history store.
type Manager struct {
	mu     sync.Mutex
	active map[string]*activeRun

	cfg     *config.Config
	store   *history.Store
	broker  *Broker
	spawner ProcessSpawner
}

func NewManager(cfg *config.Config, store *history.Store, broker *Broker, spawner ProcessSpawner) *Manager {
	return &Manager{
		active:  make(map[string]*activeRun),
		cfg:     cfg,
		store:   store,
		broker:  broker,
		spawner: spawner,
	}
}

// StartJob validates the job, atomically claims its slot in the
// registry and spawns the transfer process. Exactly one of two
// concurrent starts for the same id wins; the loser gets
// JobAlreadyRunningError.
func (m *Manager) StartJob(job model.Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	ar := &activeRun{
		job:       job,
		state:     NewRunState(job, runID),
		stopWatch: make(chan struct{}),
	}

	m.mu.Lock()
	if _, exists := m.active[job.ID]; exists {
		m.mu.Unlock()
		return "", &model.JobAlreadyRunningError{JobID: job.ID}
	}
	m.active[job.ID] = ar
	m.mu.Unlock()

	handle, err := m.spawner.Start(job, runID)
	if err != nil {
		m.remove(job.ID)
		m.broker.Publish(job.ID, model.Event{
			Type:  model.EventComplete,
			JobID: job.ID,
			RunID: runID,
			Completion: &model.Completion{
				Success: false,
				Code:    model.CodeSpawnFailed,
				Error:   err.Error(),
			},
		})
		return "", err
	}

	ar.mu.Lock()
	ar.handle = handle
	pending := ar.pendingKill
	ar.mu.Unlock()
	if pending {
		handle.Kill()
	}

	_ = ar.state.Start()
	ar.lastActivity.Store(time.Now().UnixMilli())
	m.broker.Reset(job.ID)

	go m.supervise(ar)

	logger.Log.Info("job run started",
		zap.String("job", job.ID),
		zap.String("run", runID),
		zap.String("mode", string(job.Mode)))

	return runID, nil
}

// KillJob requests cancellation of a job's running transfer. Killing a
// job with no active run is a no-op.
func (m *Manager) KillJob(jobID string) {
	m.mu.Lock()
	ar, ok := m.active[jobID]
	m.mu.Unlock()

	if !ok {
		return
	}
	ar.kill(model.CodeCancelled, "cancelled")
}

// KillAll cancels every active run, used during daemon shutdown.
func (m *Manager) KillAll() {
	m.mu.Lock()
	runs := make([]*activeRun, 0, len(m.active))
	for _, ar := range m.active {
		runs = append(runs, ar)
	}
	m.mu.Unlock()

	for _, ar := range runs {
		ar.kill(model.CodeCancelled, "cancelled")
	}
}

// ActiveRuns reports the currently RUNNING runs.
func (m *Manager) ActiveRuns() []model.JobRun {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]model.JobRun, 0, len(m.active))
	for _, ar := range m.active {
		runs = append(runs, ar.state.Snapshot())
	}
	return runs
}

// IsRunning reports whether a job has an active run.
func (m *Manager) IsRunning(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[jobID]
	return ok
}

func (m *Manager) remove(jobID string) {
	m.mu.Lock()
	delete(m.active, jobID)
	m.mu.Unlock()
}

// supervise drains the run's event stream, relays events to the
// broker in order and finalizes the run on the terminal event.
func (m *Manager) supervise(ar *activeRun) {
	defer m.remove(ar.job.ID)
	defer close(ar.stopWatch)

	if m.cfg.StallTimeoutSeconds > 0 {
		go m.watchStall(ar, time.Duration(m.cfg.StallTimeoutSeconds)*time.Second)
	}
	if m.cfg.RunTimeoutSeconds > 0 {
		timeout := time.Duration(m.cfg.RunTimeoutSeconds) * time.Second
		timer := time.AfterFunc(timeout, func() {
			ar.kill(model.CodeTimeout, fmt.Sprintf("backup timed out after %d seconds", m.cfg.RunTimeoutSeconds))
		})
		defer timer.Stop()
	}

	ar.mu.Lock()
	handle := ar.handle
	ar.mu.Unlock()

	for ev := range handle.Events() {
		ar.lastActivity.Store(time.Now().UnixMilli())

		switch ev.Type {
		case model.EventComplete:
			m.finishRun(ar, ev)
		default:
			ar.state.Observe(ev)
			m.broker.Publish(ar.job.ID, ev)
		}
	}
}

// watchStall kills the run if no output arrives for the stall window.
func (m *Manager) watchStall(ar *activeRun, stall time.Duration) {
	poll := stall
	if poll > 5*time.Second {
		poll = 5 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ar.stopWatch:
			return
		case <-ticker.C:
			last := time.UnixMilli(ar.lastActivity.Load())
			if time.Since(last) >= stall {
				logger.Log.Warn("backup stalled, killing",
					zap.String("job", ar.job.ID),
					zap.Duration("stall", stall))
				ar.kill(model.CodeStalled, fmt.Sprintf("backup stalled after %d seconds without output", m.cfg.StallTimeoutSeconds))
				return
			}
		}
	}
}

// finishRun applies the terminal transition, records the run, commits
// TIME_MACHINE successes to the history store and publishes the
// terminal event last.
func (m *Manager) finishRun(ar *activeRun, ev model.Event) {
	completion := *ev.Completion

	// A watchdog kill surfaces as a plain cancellation from the
	// process; restore the policy-level code.
	if code, errMsg := ar.killReason(); code != model.CodeNone && completion.Code == model.CodeCancelled {
		completion.Code = code
		completion.Error = errMsg
	}

	if err := ar.state.Complete(completion); err != nil {
		logger.Log.Error("terminal transition rejected",
			zap.String("job", ar.job.ID),
			zap.Error(err))
	}
	run := ar.state.Snapshot()

	if err := m.store.RecordRun(run); err != nil {
		logger.Log.Warn("failed to record run",
			zap.String("run", run.RunID),
			zap.Error(err))
	}

	ar.mu.Lock()
	snapshotDir := ""
	if ar.handle != nil {
		snapshotDir = ar.handle.SnapshotDir()
	}
	ar.mu.Unlock()

	if completion.Success && ar.job.Mode == model.ModeTimeMachine && snapshotDir != "" {
		m.commitSnapshot(ar.job, run, snapshotDir)
	}

	ev.Completion = &completion
	m.broker.Publish(ar.job.ID, ev)

	logger.Log.Info("job run finished",
		zap.String("job", ar.job.ID),
		zap.String("run", run.RunID),
		zap.String("status", string(run.Status)),
		zap.String("error", run.Error))
}

func (m *Manager) commitSnapshot(job model.Job, run model.JobRun, snapshotDir string) {
	if err := rsync.UpdateLatestSymlink(job.Dest, filepath.Base(snapshotDir)); err != nil {
		logger.Log.Warn("failed to update latest symlink",
			zap.String("job", job.ID),
			zap.Error(err))
	}

	files, err := collectFileIndex(snapshotDir)
	if err != nil {
		logger.Log.Warn("failed to walk snapshot directory",
			zap.String("dir", snapshotDir),
			zap.Error(err))
		return
	}

	if _, err := m.store.Commit(run, files); err != nil {
		logger.Log.Warn("failed to commit snapshot",
			zap.String("job", job.ID),
			zap.Error(err))
	}
}

// collectFileIndex walks a snapshot directory and returns its file
// index with paths relative to the snapshot root.
func collectFileIndex(root string) ([]model.FileEntry, error) {
	var files []model.FileEntry

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		files = append(files, model.FileEntry{
			Path: "/" + filepath.ToSlash(rel),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
