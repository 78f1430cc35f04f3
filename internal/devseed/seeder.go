// Package devseed is the dev harness: it builds a playground job with
// real files, commits snapshots with churn between them and times the
// store's hot operations. Not part of the production path.
package devseed

import (
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"amber/internal/history"
	"amber/internal/logger"
	"amber/internal/model"
	"amber/internal/repository"
)

const (
	seedJobID     = "dev-backup"
	seedJobName   = "Dev Backup"
	seedSnapshots = 3
	filesPerDir   = 40
)

var seedDirs = []string{"docs", "photos", "code", "music", "code/vendor"}

type SeedResult struct {
	JobsCreated      int   `json:"jobsCreated"`
	SnapshotsCreated int   `json:"snapshotsCreated"`
	FilesCreated     int   `json:"filesCreated"`
	TotalSizeBytes   int64 `json:"totalSizeBytes"`
	DurationMillis   int64 `json:"durationMs"`
}

type ChurnResult struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
}

type BenchmarkResult struct {
	Operation   string  `json:"operation"`
	Iterations  int     `json:"iterations"`
	AvgMillis   float64 `json:"avgMs"`
	MinMillis   float64 `json:"minMs"`
	MaxMillis   float64 `json:"maxMs"`
	TotalMillis float64 `json:"totalMs"`
}

type DBStats struct {
	SnapshotCount   int64 `json:"snapshotCount"`
	FileCount       int64 `json:"fileCount"`
	TotalSizeBytes  int64 `json:"totalSizeBytes"`
	FtsIndexEntries int64 `json:"ftsIndexEntries"`
	DBSizeBytes     int64 `json:"dbSizeBytes"`
}

type Seeder struct {
	store *history.Store
	jobs  *repository.JobRepository
	root  string
	rng   *rand.Rand
}

// New creates a seeder working under root (normally ~/.amber-dev).
func New(store *history.Store, jobs *repository.JobRepository, root string) *Seeder {
	return &Seeder{
		store: store,
		jobs:  jobs,
		root:  root,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Seeder) sourceDir() string { return filepath.Join(s.root, "source") }
func (s *Seeder) backupDir() string { return filepath.Join(s.root, "backup") }

func (s *Seeder) isSeeded() bool {
	_, err := s.jobs.GetByID(seedJobID)
	return err == nil
}

// Seed creates the playground source tree, registers a TIME_MACHINE
// job and commits several snapshots with churn between them. Seeding
// twice is a no-op.
func (s *Seeder) Seed() (SeedResult, error) {
	if s.isSeeded() {
		return SeedResult{}, nil
	}

	start := time.Now()
	source := s.sourceDir()
	if err := os.MkdirAll(s.backupDir(), 0755); err != nil {
		return SeedResult{}, fmt.Errorf("failed to create playground: %w", err)
	}

	created, bytes, err := s.createSourceTree(source)
	if err != nil {
		return SeedResult{}, err
	}

	job := model.Job{
		ID:     seedJobID,
		Name:   seedJobName,
		Source: source,
		Dest:   s.backupDir(),
		Mode:   model.ModeTimeMachine,
	}
	if _, err := s.jobs.Add(job); err != nil {
		return SeedResult{}, fmt.Errorf("failed to register dev job: %w", err)
	}

	result := SeedResult{
		JobsCreated:    1,
		FilesCreated:   created,
		TotalSizeBytes: bytes,
	}

	for i := 0; i < seedSnapshots; i++ {
		if i > 0 {
			churn, err := s.Churn()
			if err != nil {
				return result, err
			}
			result.FilesCreated += churn.Added
		}
		if err := s.takeSnapshot(); err != nil {
			return result, err
		}
		result.SnapshotsCreated++
	}

	result.DurationMillis = time.Since(start).Milliseconds()

	logger.Log.Info("dev seeding complete",
		zap.Int("jobs", result.JobsCreated),
		zap.Int("snapshots", result.SnapshotsCreated),
		zap.Int("files", result.FilesCreated),
		zap.Int64("bytes", result.TotalSizeBytes),
		zap.Int64("duration_ms", result.DurationMillis))

	return result, nil
}

func (s *Seeder) createSourceTree(source string) (int, int64, error) {
	created := 0
	var bytes int64

	for _, dir := range seedDirs {
		full := filepath.Join(source, dir)
		if err := os.MkdirAll(full, 0755); err != nil {
			return created, bytes, fmt.Errorf("failed to create %s: %w", full, err)
		}

		for i := 0; i < filesPerDir; i++ {
			name := fmt.Sprintf("file-%03d.txt", i)
			size := 64 + s.rng.Intn(4096)
			if err := s.writeRandomFile(filepath.Join(full, name), size); err != nil {
				return created, bytes, err
			}
			created++
			bytes += int64(size)
		}
	}

	return created, bytes, nil
}

func (s *Seeder) writeRandomFile(path string, size int) error {
	data := make([]byte, size)
	s.rng.Read(data)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// takeSnapshot walks the source tree and commits its file index as a
// successful TIME_MACHINE run, bypassing the transfer engine.
func (s *Seeder) takeSnapshot() error {
	files, err := walkFileIndex(s.sourceDir())
	if err != nil {
		return err
	}

	now := time.Now()
	run := model.JobRun{
		RunID:     uuid.NewString(),
		JobID:     seedJobID,
		Mode:      model.ModeTimeMachine,
		Status:    model.StatusSuccess,
		StartedAt: now,
		EndedAt:   &now,
	}

	if err := s.store.RecordRun(run); err != nil {
		return err
	}
	if _, err := s.store.Commit(run, files); err != nil {
		return err
	}

	return nil
}

// Churn mutates the playground source tree: a handful of files are
// added, modified and deleted, so consecutive snapshots differ.
func (s *Seeder) Churn() (ChurnResult, error) {
	var result ChurnResult
	source := s.sourceDir()

	existing, err := walkFileIndex(source)
	if err != nil {
		return result, err
	}

	for i := 0; i < 10; i++ {
		dir := seedDirs[s.rng.Intn(len(seedDirs))]
		name := fmt.Sprintf("churn-%d-%04d.txt", time.Now().UnixNano()%100000, s.rng.Intn(10000))
		if err := s.writeRandomFile(filepath.Join(source, dir, name), 64+s.rng.Intn(1024)); err != nil {
			return result, err
		}
		result.Added++
	}

	for i := 0; i < 10 && len(existing) > 0; i++ {
		target := existing[s.rng.Intn(len(existing))]
		if err := s.writeRandomFile(filepath.Join(source, filepath.FromSlash(target.Path)), 64+s.rng.Intn(2048)); err != nil {
			return result, err
		}
		result.Modified++
	}

	for i := 0; i < 5 && len(existing) > 0; i++ {
		idx := s.rng.Intn(len(existing))
		target := existing[idx]
		if err := os.Remove(filepath.Join(source, filepath.FromSlash(target.Path))); err == nil {
			result.Deleted++
		}
		existing = append(existing[:idx], existing[idx+1:]...)
	}

	return result, nil
}

// Benchmarks times the store's read operations over the seeded data.
func (s *Seeder) Benchmarks(iterations int) ([]BenchmarkResult, error) {
	if iterations <= 0 {
		iterations = 20
	}

	ops := []struct {
		name string
		fn   func() error
	}{
		{"query", func() error {
			_, err := s.store.Query(seedJobID, time.Time{}, time.Time{})
			return err
		}},
		{"search_paths", func() error {
			_, err := s.store.SearchPaths("file", seedJobID, 100)
			return err
		}},
		{"stats", func() error {
			_, err := s.store.Stats()
			return err
		}},
		{"recent_runs", func() error {
			_, err := s.store.RecentRuns(seedJobID, 20)
			return err
		}},
	}

	results := make([]BenchmarkResult, 0, len(ops))
	for _, op := range ops {
		r := BenchmarkResult{Operation: op.name, Iterations: iterations, MinMillis: -1}

		for i := 0; i < iterations; i++ {
			start := time.Now()
			if err := op.fn(); err != nil {
				return nil, fmt.Errorf("benchmark %s failed: %w", op.name, err)
			}
			ms := float64(time.Since(start).Microseconds()) / 1000.0

			r.TotalMillis += ms
			if r.MinMillis < 0 || ms < r.MinMillis {
				r.MinMillis = ms
			}
			if ms > r.MaxMillis {
				r.MaxMillis = ms
			}
		}

		r.AvgMillis = r.TotalMillis / float64(iterations)
		results = append(results, r)

		logger.Log.Info("benchmark finished",
			zap.String("operation", r.Operation),
			zap.Float64("avg_ms", r.AvgMillis),
			zap.Float64("min_ms", r.MinMillis),
			zap.Float64("max_ms", r.MaxMillis),
			zap.Int("iterations", r.Iterations))
	}

	return results, nil
}

// DBStats reports database-level statistics.
func (s *Seeder) DBStats() (DBStats, error) {
	stats, err := s.store.Stats()
	if err != nil {
		return DBStats{}, err
	}

	return DBStats{
		SnapshotCount:   stats.SnapshotCount,
		FileCount:       stats.FileCount,
		TotalSizeBytes:  stats.TotalSizeBytes,
		FtsIndexEntries: stats.IndexEntryCount,
		DBSizeBytes:     stats.StorageSizeBytes,
	}, nil
}

// Clear removes the playground job, its history and its files.
func (s *Seeder) Clear() error {
	if err := s.store.PurgeJob(seedJobID); err != nil {
		return err
	}
	if err := s.jobs.Delete(seedJobID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to remove playground: %w", err)
	}
	return nil
}

func walkFileIndex(root string) ([]model.FileEntry, error) {
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
			Path: filepath.ToSlash(rel),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return files, nil
}
