package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"amber/internal/config"
	"amber/internal/devseed"
	"amber/internal/diskprobe"
	"amber/internal/fsutil"
	"amber/internal/history"
	"amber/internal/logger"
	"amber/internal/model"
	"amber/internal/repository"
	"amber/internal/volume"
)

// Server exposes the orchestrator over HTTP: commands return quickly
// with request acceptance; run outcomes stream over SSE.
type Server struct {
	echo      *echo.Echo
	cfg       *config.Config
	manager   *Manager
	broker    *Broker
	store     *history.Store
	jobRepo   *repository.JobRepository
	scheduler *Scheduler
	seeder    *devseed.Seeder
	stopCh    chan struct{}
}

func NewServer(cfg *config.Config, manager *Manager, broker *Broker, store *history.Store, jobRepo *repository.JobRepository, scheduler *Scheduler, seeder *devseed.Seeder) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		cfg:       cfg,
		manager:   manager,
		broker:    broker,
		store:     store,
		jobRepo:   jobRepo,
		scheduler: scheduler,
		seeder:    seeder,
		stopCh:    make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// For the entire daemon
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)
	s.echo.GET("/events", s.handleGlobalEvents)

	// For a specific job
	g := s.echo.Group("/jobs")
	g.GET("", s.handleListJobs)
	g.POST("", s.handleAddJob)
	g.DELETE("/:id", s.handleRemoveJob)
	g.POST("/:id/run", s.handleRunJob)
	g.POST("/:id/kill", s.handleKillJob)
	g.GET("/:id/events", s.handleJobEvents)

	// History
	h := s.echo.Group("/history")
	h.GET("", s.handleHistory)
	h.GET("/search", s.handleSearch)
	h.GET("/stats", s.handleHistoryStats)
	h.GET("/runs", s.handleRuns)
	h.POST("/rebuild", s.handleRebuild)
	h.POST("/prune", s.handlePrune)

	// Filesystem and environment
	s.echo.GET("/disk", s.handleDiskStats)
	s.echo.GET("/volumes", s.handleVolumes)
	fsg := s.echo.Group("/fs")
	fsg.GET("/list", s.handleListDirectory)
	fsg.POST("/sandbox", s.handleCreateSandbox)
	fsg.POST("/open", s.handleOpenPath)
	fsg.POST("/reveal", s.handleReveal)

	if s.cfg.DevMode {
		d := s.echo.Group("/dev")
		d.POST("/seed", s.handleDevSeed)
		d.POST("/churn", s.handleDevChurn)
		d.GET("/benchmarks", s.handleDevBenchmarks)
		d.GET("/stats", s.handleDevStats)
		d.POST("/clear", s.handleDevClear)
	}
}

func (s *Server) Start() {
	go func() {
		addr := ":" + strconv.Itoa(s.cfg.DaemonPort)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.manager.KillAll()
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func errJSON(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"runs": s.manager.ActiveRuns(),
	})
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleListJobs(c echo.Context) error {
	jobs, err := s.jobRepo.GetAll()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}

	running := make(map[string]model.JobRun)
	for _, run := range s.manager.ActiveRuns() {
		running[run.JobID] = run
	}

	nextRuns := make(map[string]time.Time)
	for _, job := range jobs {
		if next, ok := s.scheduler.NextRun(job.ID); ok {
			nextRuns[job.ID] = next
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"jobs":     jobs,
		"running":  running,
		"nextRuns": nextRuns,
	})
}

func (s *Server) handleAddJob(c echo.Context) error {
	var job model.Job
	if err := c.Bind(&job); err != nil {
		return errJSON(c, http.StatusBadRequest, fmt.Errorf("malformed job payload"))
	}

	job, err := s.jobRepo.Add(job)
	if err != nil {
		if _, ok := errors.AsType[*model.ValidationError](err); ok {
			return errJSON(c, http.StatusBadRequest, err)
		}
		return errJSON(c, http.StatusInternalServerError, err)
	}

	if job.Scheduled() {
		if err := s.scheduler.Add(job); err != nil {
			logger.Log.Warn("job saved but not scheduled",
				zap.String("job", job.ID),
				zap.Error(err))
		}
	}

	return c.JSON(http.StatusCreated, job)
}

func (s *Server) handleRemoveJob(c echo.Context) error {
	id := c.Param("id")
	s.manager.KillJob(id)
	s.scheduler.Remove(id)

	if err := s.jobRepo.Delete(id); err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}

	s.broker.Drop(id)
	return c.NoContent(http.StatusNoContent)
}

// handleRunJob accepts a start request. Acceptance is synchronous;
// the run's outcome arrives over the job's event stream.
func (s *Server) handleRunJob(c echo.Context) error {
	id := c.Param("id")

	job, err := s.jobRepo.GetByID(id)
	if err != nil {
		if _, ok := errors.AsType[*model.NotFoundError](err); ok {
			return errJSON(c, http.StatusNotFound, err)
		}
		return errJSON(c, http.StatusInternalServerError, err)
	}

	runID, err := s.manager.StartJob(job)
	if err != nil {
		if _, ok := errors.AsType[*model.JobAlreadyRunningError](err); ok {
			return errJSON(c, http.StatusConflict, err)
		}
		if _, ok := errors.AsType[*model.ValidationError](err); ok {
			return errJSON(c, http.StatusBadRequest, err)
		}
		return errJSON(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{"runId": runID})
}

func (s *Server) handleKillJob(c echo.Context) error {
	s.manager.KillJob(c.Param("id"))
	return c.JSON(http.StatusAccepted, map[string]string{"status": "kill requested"})
}

func (s *Server) handleJobEvents(c echo.Context) error {
	return s.streamEvents(c, c.Param("id"))
}

func (s *Server) handleGlobalEvents(c echo.Context) error {
	return s.streamEvents(c, GlobalTopic)
}

// streamEvents serves a topic as server-sent events: the replay
// buffer first, then live events until the client goes away.
func (s *Server) streamEvents(c echo.Context, topicID string) error {
	events, cancel := s.broker.Subscribe(topicID)
	defer cancel()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

func (s *Server) handleHistory(c echo.Context) error {
	jobID := c.QueryParam("job")
	if jobID == "" {
		return errJSON(c, http.StatusBadRequest, fmt.Errorf("job query parameter required"))
	}

	var from, to time.Time
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return errJSON(c, http.StatusBadRequest, fmt.Errorf("invalid from timestamp"))
		}
		from = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return errJSON(c, http.StatusBadRequest, fmt.Errorf("invalid to timestamp"))
		}
		to = t
	}

	snaps, err := s.store.Query(jobID, from, to)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, snaps)
}

func (s *Server) handleSearch(c echo.Context) error {
	pattern := c.QueryParam("q")
	if pattern == "" {
		return errJSON(c, http.StatusBadRequest, fmt.Errorf("q query parameter required"))
	}

	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	results, err := s.store.SearchPaths(pattern, c.QueryParam("job"), limit)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, results)
}

func (s *Server) handleHistoryStats(c echo.Context) error {
	stats, err := s.store.Stats()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRuns(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	runs, err := s.store.RecentRuns(c.QueryParam("job"), limit)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleRebuild(c echo.Context) error {
	if err := s.store.RebuildIndex(); err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "rebuilt"})
}

type pruneRequest struct {
	JobID    string `json:"jobId"`
	KeepLast int    `json:"keepLast"`
}

func (s *Server) handlePrune(c echo.Context) error {
	var req pruneRequest
	if err := c.Bind(&req); err != nil || req.JobID == "" {
		return errJSON(c, http.StatusBadRequest, fmt.Errorf("jobId required"))
	}

	removed, err := s.store.Prune(req.JobID, req.KeepLast)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleDiskStats(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return errJSON(c, http.StatusBadRequest, fmt.Errorf("path query parameter required"))
	}
	return c.JSON(http.StatusOK, diskprobe.Stat(path))
}

func (s *Server) handleVolumes(c echo.Context) error {
	return c.JSON(http.StatusOK, volume.List(s.cfg.MountRoots))
}

func (s *Server) handleListDirectory(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return errJSON(c, http.StatusBadRequest, fmt.Errorf("path query parameter required"))
	}

	entries, err := fsutil.ListDirectory(path)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	return c.JSON(http.StatusOK, entries)
}

type sandboxRequest struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
}

func (s *Server) handleCreateSandbox(c echo.Context) error {
	var req sandboxRequest
	if err := c.Bind(&req); err != nil || req.Source == "" || req.Dest == "" {
		return errJSON(c, http.StatusBadRequest, fmt.Errorf("source and dest required"))
	}

	if err := fsutil.CreateSandboxDirs(req.Source, req.Dest); err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleOpenPath(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return errJSON(c, http.StatusBadRequest, fmt.Errorf("path required"))
	}
	if err := fsutil.OpenPath(req.Path); err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReveal(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return errJSON(c, http.StatusBadRequest, fmt.Errorf("path required"))
	}
	if err := fsutil.RevealInFileManager(req.Path); err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDevSeed(c echo.Context) error {
	result, err := s.seeder.Seed()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleDevChurn(c echo.Context) error {
	result, err := s.seeder.Churn()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleDevBenchmarks(c echo.Context) error {
	iterations := 20
	if v := c.QueryParam("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			iterations = parsed
		}
	}

	results, err := s.seeder.Benchmarks(iterations)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, results)
}

func (s *Server) handleDevStats(c echo.Context) error {
	stats, err := s.seeder.DBStats()
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleDevClear(c echo.Context) error {
	if err := s.seeder.Clear(); err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}
