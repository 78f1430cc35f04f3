package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"amber/internal/daemon"
	"amber/internal/db"
	"amber/internal/devseed"
	"amber/internal/fsutil"
	"amber/internal/history"
	"amber/internal/logger"
	"amber/internal/model"
	"amber/internal/repository"
	"amber/internal/rsync"
	"amber/internal/volume"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the backup daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		gdb, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}

		store := history.NewStore(gdb)
		jobs := repository.NewJobRepository(gdb)
		broker := daemon.NewBroker(cfg.BufferSize)

		runner := rsync.NewRunner(cfg.RsyncPath, time.Duration(cfg.KillGraceSeconds)*time.Second)
		manager := daemon.NewManager(cfg, store, broker, daemon.NewRsyncSpawner(runner))

		scheduler := daemon.NewScheduler(manager, jobs)
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()

		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		seeder := devseed.New(store, jobs, filepath.Join(home, ".amber-dev"))

		infoPath := filepath.Join(home, ".amber", "daemon.json")
		if err := writeDaemonInfo(infoPath, cfg.DaemonPort); err != nil {
			logger.Log.Warn("failed to write daemon info", zap.Error(err))
		}
		defer func() { _ = os.Remove(infoPath) }()

		watcher, err := volume.New(cfg.MountRoots, cfg.BufferSize)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			logger.Log.Warn("volume watching disabled", zap.Error(err))
			watcher.Stop()
			watcher = nil
		} else {
			go func() {
				for ev := range watcher.Events() {
					broker.Publish(daemon.GlobalTopic, ev)
					if ev.Type == model.EventMounted {
						scheduler.OnMount(ev.Path)
					}
				}
			}()
		}

		srv := daemon.NewServer(cfg, manager, broker, store, jobs, scheduler, seeder)
		srv.Start()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Log.Info("signal received, shutting down")
		case <-srv.StopCh():
			logger.Log.Info("stop requested, shutting down")
		}

		if watcher != nil {
			watcher.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	},
}

// writeDaemonInfo records the running daemon's pid and port so other
// tooling can find it. Written atomically; removed on clean shutdown.
func writeDaemonInfo(path string, port int) error {
	data, err := json.Marshal(map[string]any{
		"pid":       os.Getpid(),
		"port":      port,
		"startedAt": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, data)
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
