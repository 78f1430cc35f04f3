package rsync

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"amber/internal/logger"
	"amber/internal/model"
)

// Runner spawns and supervises one external rsync process per run.
type Runner struct {
	bin   string
	grace time.Duration
}

func NewRunner(bin string, grace time.Duration) *Runner {
	if bin == "" {
		bin = "rsync"
	}
	return &Runner{bin: bin, grace: grace}
}

// Handle is one live transfer process. Events are delivered in process
// output order; the terminal complete event is always last, after
// which the channel is closed.
type Handle struct {
	jobID       string
	runID       string
	snapshotDir string
	cmd         *exec.Cmd
	grace       time.Duration

	events chan model.Event
	done   chan struct{}

	killMu sync.Mutex
	killed bool
}

// Start spawns the transfer process for one run. It never blocks on
// the transfer itself: output is delivered through Events. A missing
// executable or inaccessible path fails the start request with
// ProcessSpawnError.
func (r *Runner) Start(job model.Job, runID string) (*Handle, error) {
	if _, err := os.Stat(job.Source); err != nil {
		return nil, &model.ProcessSpawnError{JobID: job.ID, Reason: "source path not accessible", Err: err}
	}
	if job.Mode != model.ModeCloud {
		if _, err := os.Stat(job.Dest); err != nil {
			return nil, &model.ProcessSpawnError{JobID: job.ID, Reason: "destination path not accessible", Err: err}
		}
	}

	args, snapshotDir := BuildArgs(job, time.Now())
	cmd := exec.Command(r.bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &model.ProcessSpawnError{JobID: job.ID, Reason: "failed to open stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &model.ProcessSpawnError{JobID: job.ID, Reason: "failed to open stderr pipe", Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &model.ProcessSpawnError{JobID: job.ID, Reason: "failed to start transfer process", Err: err}
	}

	h := &Handle{
		jobID:       job.ID,
		runID:       runID,
		snapshotDir: snapshotDir,
		cmd:         cmd,
		grace:       r.grace,
		events:      make(chan model.Event, 64),
		done:        make(chan struct{}),
	}

	h.emit(model.Event{Type: model.EventStarted, JobID: job.ID})
	h.emit(model.Event{
		Type:    model.EventLog,
		JobID:   job.ID,
		Message: fmt.Sprintf("starting rsync: %s -> %s (pid %d)", job.Source, job.Dest, cmd.Process.Pid),
	})

	go h.supervise(stdout, stderr)

	logger.Log.Info("transfer process started",
		zap.String("job", job.ID),
		zap.String("run", runID),
		zap.Int("pid", cmd.Process.Pid))

	return h, nil
}

func (h *Handle) Events() <-chan model.Event { return h.events }

// SnapshotDir is the per-run snapshot directory for TIME_MACHINE jobs,
// empty otherwise.
func (h *Handle) SnapshotDir() string { return h.snapshotDir }

// Kill terminates the process: SIGTERM, then SIGKILL after the grace
// period. It is idempotent and a no-op once the run has finished.
func (h *Handle) Kill() {
	select {
	case <-h.done:
		return
	default:
	}

	h.killMu.Lock()
	if h.killed {
		h.killMu.Unlock()
		return
	}
	h.killed = true
	h.killMu.Unlock()

	logger.Log.Info("killing transfer process",
		zap.String("job", h.jobID),
		zap.String("run", h.runID))

	_ = h.cmd.Process.Signal(syscall.SIGTERM)

	time.AfterFunc(h.grace, func() {
		select {
		case <-h.done:
		default:
			_ = h.cmd.Process.Kill()
		}
	})
}

func (h *Handle) wasKilled() bool {
	h.killMu.Lock()
	defer h.killMu.Unlock()
	return h.killed
}

func (h *Handle) emit(ev model.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.RunID = h.runID
	h.events <- ev
}

// supervise drains both output streams, waits for the process, and
// emits exactly one terminal event after all pending output events.
func (h *Handle) supervise(stdout, stderr io.Reader) {
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		h.readStdout(stdout)
	}()
	go func() {
		defer wg.Done()
		h.readStderr(stderr)
	}()

	wg.Wait()
	err := h.cmd.Wait()
	close(h.done)

	completion := h.completionFor(err)
	h.emit(model.Event{
		Type:       model.EventComplete,
		JobID:      h.jobID,
		Completion: &completion,
	})
	close(h.events)
}

func (h *Handle) completionFor(err error) model.Completion {
	switch {
	case h.wasKilled():
		return model.Completion{Success: false, Code: model.CodeCancelled, Error: "cancelled"}
	case err == nil:
		return model.Completion{Success: true}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return model.Completion{
				Success: false,
				Code:    model.CodeExitNonzero,
				Error:   fmt.Sprintf("rsync exited with code %d", exitErr.ExitCode()),
			}
		}
		return model.Completion{
			Success: false,
			Code:    model.CodeIOError,
			Error:   fmt.Sprintf("failed to wait for rsync process: %v", err),
		}
	}
}

func (h *Handle) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var currentFile string
	for scanner.Scan() {
		ev, ok := Parse(h.jobID, scanner.Text())
		if !ok {
			continue
		}

		if ev.Type == model.EventProgress {
			ev.Progress.CurrentFile = currentFile
		} else if !isChatter(ev.Message) {
			currentFile = ev.Message
		}

		h.emit(ev)
	}
}

func (h *Handle) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		h.emit(model.Event{
			Type:    model.EventLog,
			JobID:   h.jobID,
			Message: "[stderr] " + line,
		})
	}
}
