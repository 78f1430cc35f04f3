package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"amber/internal/diskprobe"
	"amber/internal/fsutil"
	"amber/internal/logger"
	"amber/internal/model"
)

// Info describes one mounted volume under a mount root.
type Info struct {
	Name  string          `json:"name"`
	Path  string          `json:"path"`
	Stats model.DiskStats `json:"stats"`
}

// Watcher observes the mount roots and emits mounted/unmounted events
// when volumes appear or disappear.
type Watcher struct {
	fw      *fsnotify.Watcher
	roots   []string
	eventCh chan model.Event
	doneCh  chan struct{}
}

func New(roots []string, bufferSize int) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		fw:      fw,
		roots:   roots,
		eventCh: make(chan model.Event, bufferSize),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching every existing mount root. Missing roots are
// skipped, not errors; they differ per platform.
func (w *Watcher) Start() error {
	watched := 0
	for _, root := range w.roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		if err := w.fw.Add(root); err != nil {
			logger.Log.Warn("failed to watch mount root",
				zap.String("root", root),
				zap.Error(err))
			continue
		}
		watched++
		logger.Log.Debug("watching mount root",
			zap.String("root", root))
	}

	if watched == 0 {
		return fmt.Errorf("no mount roots available to watch")
	}

	go w.run()

	logger.Log.Info("volume watcher started",
		zap.Int("roots", watched))
	return nil
}

func (w *Watcher) run() {
	defer close(w.eventCh)

	for {
		select {
		case <-w.doneCh:
			logger.Log.Info("volume watcher stopping")
			return

		case fsEvent, ok := <-w.fw.Events:
			if !ok {
				return
			}

			var eventType model.EventType
			switch {
			case fsEvent.Op.Has(fsnotify.Create):
				eventType = model.EventMounted
			case fsEvent.Op.Has(fsnotify.Remove), fsEvent.Op.Has(fsnotify.Rename):
				eventType = model.EventUnmounted
			default:
				continue
			}

			if fsutil.IsHidden(filepath.Base(fsEvent.Name)) {
				continue
			}

			event := model.Event{
				Type:      eventType,
				Path:      fsEvent.Name,
				Timestamp: time.Now(),
			}

			logger.Log.Info("volume event",
				zap.String("type", string(eventType)),
				zap.String("path", fsEvent.Name))

			select {
			case w.eventCh <- event:
			default:
				logger.Log.Warn("volume event channel full, dropping event",
					zap.String("path", fsEvent.Name))
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Log.Error("volume watcher error",
				zap.Error(err))
		}
	}
}

func (w *Watcher) Events() <-chan model.Event {
	return w.eventCh
}

func (w *Watcher) Stop() {
	close(w.doneCh)
	_ = w.fw.Close()
}

// List enumerates mounted volumes under the given roots with their
// disk stats.
func List(roots []string) []Info {
	var volumes []Info

	for _, root := range roots {
		dirents, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, d := range dirents {
			if fsutil.IsHidden(d.Name()) {
				continue
			}
			path := filepath.Join(root, d.Name())
			volumes = append(volumes, Info{
				Name:  d.Name(),
				Path:  path,
				Stats: diskprobe.Stat(path),
			})
		}
	}

	return volumes
}

// IsMounted reports whether a path currently resolves.
func IsMounted(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
