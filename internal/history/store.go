package history

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"amber/internal/logger"
	"amber/internal/model"
)

const insertBatchSize = 1000

// Store is the append-only snapshot history. Commits serialize per job
// id; queries and searches run concurrently against sqlite WAL and see
// either the pre- or post-commit state, never a partial snapshot.
type Store struct {
	db *gorm.DB

	mu       sync.Mutex
	jobLocks map[string]*sync.Mutex
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{
		db:       gdb,
		jobLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) jobLock(jobID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.jobLocks[jobID]
	if !ok {
		l = &sync.Mutex{}
		s.jobLocks[jobID] = l
	}
	return l
}

// Commit persists one successful TIME_MACHINE run as an immutable
// snapshot together with its file index. Anything else is a caller
// defect and fails with InvalidCommitError.
func (s *Store) Commit(run model.JobRun, files []model.FileEntry) (model.Snapshot, error) {
	if run.Status != model.StatusSuccess {
		err := &model.InvalidCommitError{Reason: fmt.Sprintf("run %s has status %s, want SUCCESS", run.RunID, run.Status)}
		logger.Log.Error("refusing snapshot commit", zap.String("job", run.JobID), zap.Error(err))
		return model.Snapshot{}, err
	}
	if run.Mode != model.ModeTimeMachine {
		err := &model.InvalidCommitError{Reason: fmt.Sprintf("run %s has mode %s, want TIME_MACHINE", run.RunID, run.Mode)}
		logger.Log.Error("refusing snapshot commit", zap.String("job", run.JobID), zap.Error(err))
		return model.Snapshot{}, err
	}

	lock := s.jobLock(run.JobID)
	lock.Lock()
	defer lock.Unlock()

	var totalSize int64
	for _, f := range files {
		totalSize += f.Size
	}

	snap := model.Snapshot{
		SnapshotID:     uuid.NewString(),
		JobID:          run.JobID,
		RunID:          run.RunID,
		CreatedAt:      time.Now(),
		FileCount:      int64(len(files)),
		TotalSizeBytes: totalSize,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&snap).Error; err != nil {
			return err
		}

		rows := make([]model.File, 0, len(files))
		for _, f := range files {
			rows = append(rows, model.File{
				SnapshotID: snap.ID,
				Path:       f.Path,
				Name:       path.Base(f.Path),
				Size:       f.Size,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	logger.Log.Info("snapshot committed",
		zap.String("job", run.JobID),
		zap.String("snapshot", snap.SnapshotID),
		zap.Int64("files", snap.FileCount),
		zap.Int64("bytes", snap.TotalSizeBytes))

	return snap, nil
}

// Query returns a job's snapshots, newest first. Zero from/to values
// leave that end of the range open.
func (s *Store) Query(jobID string, from, to time.Time) ([]model.Snapshot, error) {
	q := s.db.Where("job_id = ?", jobID)
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("created_at <= ?", to)
	}

	var snaps []model.Snapshot
	return snaps, q.Order("created_at desc").Find(&snaps).Error
}

// SearchResult pairs one snapshot with the paths inside it that
// matched a search pattern.
type SearchResult struct {
	Snapshot model.Snapshot `json:"snapshot"`
	Paths    []string       `json:"paths"`
}

type searchRow struct {
	FilePath       string
	ID             uint
	SnapshotID     string
	JobID          string
	RunID          string
	CreatedAt      time.Time
	FileCount      int64
	TotalSizeBytes int64
}

// SearchPaths runs a full-text search over file paths across all
// snapshots. Results are grouped per snapshot and ordered by snapshot
// recency so they line up with Query's ordering. An empty jobID
// searches every job.
func (s *Store) SearchPaths(pattern, jobID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT f.path AS file_path,
		       s.id, s.snapshot_id, s.job_id, s.run_id, s.created_at, s.file_count, s.total_size_bytes
		FROM files_fts fts
		JOIN files f ON fts.rowid = f.id
		JOIN snapshots s ON f.snapshot_id = s.id
		WHERE files_fts MATCH ?`
	args := []any{ftsQuery(pattern)}
	if jobID != "" {
		query += " AND s.job_id = ?"
		args = append(args, jobID)
	}
	query += " ORDER BY s.created_at DESC, f.path ASC LIMIT ?"
	args = append(args, limit)

	var rows []searchRow
	if err := s.db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}

	var results []SearchResult
	for _, row := range rows {
		if len(results) == 0 || results[len(results)-1].Snapshot.SnapshotID != row.SnapshotID {
			results = append(results, SearchResult{
				Snapshot: model.Snapshot{
					ID:             row.ID,
					SnapshotID:     row.SnapshotID,
					JobID:          row.JobID,
					RunID:          row.RunID,
					CreatedAt:      row.CreatedAt,
					FileCount:      row.FileCount,
					TotalSizeBytes: row.TotalSizeBytes,
				},
			})
		}
		last := &results[len(results)-1]
		last.Paths = append(last.Paths, row.FilePath)
	}

	return results, nil
}

// ftsQuery converts a user pattern to an FTS5 match expression.
// Explicit FTS syntax passes through; anything else becomes a quoted
// phrase with prefix matching, so "c.txt" matches "/b/c.txt".
func ftsQuery(pattern string) string {
	if strings.Contains(pattern, "*") || strings.Contains(pattern, `"`) {
		return pattern
	}
	return `"` + strings.ReplaceAll(pattern, `"`, `""`) + `"*`
}

// RebuildIndex regenerates the full-text index from the files table.
// Search results are identical before and after; the index holds no
// state of its own.
func (s *Store) RebuildIndex() error {
	if err := s.db.Exec("INSERT INTO files_fts(files_fts) VALUES('rebuild')").Error; err != nil {
		return fmt.Errorf("failed to rebuild full-text index: %w", err)
	}
	return nil
}

type StoreStats struct {
	SnapshotCount    int64 `json:"snapshotCount"`
	FileCount        int64 `json:"fileCount"`
	TotalSizeBytes   int64 `json:"totalSizeBytes"`
	IndexEntryCount  int64 `json:"indexEntryCount"`
	StorageSizeBytes int64 `json:"storageSizeBytes"`
}

func (s *Store) Stats() (StoreStats, error) {
	var stats StoreStats

	if err := s.db.Model(&model.Snapshot{}).Count(&stats.SnapshotCount).Error; err != nil {
		return stats, err
	}
	if err := s.db.Model(&model.File{}).Count(&stats.FileCount).Error; err != nil {
		return stats, err
	}
	if err := s.db.Model(&model.Snapshot{}).
		Select("COALESCE(SUM(total_size_bytes), 0)").
		Scan(&stats.TotalSizeBytes).Error; err != nil {
		return stats, err
	}
	if err := s.db.Raw("SELECT COUNT(*) FROM files_fts").Scan(&stats.IndexEntryCount).Error; err != nil {
		return stats, err
	}

	var pageCount, pageSize int64
	if err := s.db.Raw("PRAGMA page_count").Scan(&pageCount).Error; err != nil {
		return stats, err
	}
	if err := s.db.Raw("PRAGMA page_size").Scan(&pageSize).Error; err != nil {
		return stats, err
	}
	stats.StorageSizeBytes = pageCount * pageSize

	return stats, nil
}

// Prune deletes a job's oldest snapshots beyond keepLast, the only
// sanctioned way committed snapshots ever leave the store.
func (s *Store) Prune(jobID string, keepLast int) (int, error) {
	if keepLast < 0 {
		keepLast = 0
	}

	lock := s.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	var victims []model.Snapshot
	err := s.db.Where("job_id = ?", jobID).
		Order("created_at desc").
		Offset(keepLast).
		Limit(-1).
		Find(&victims).Error
	if err != nil {
		return 0, err
	}
	if len(victims) == 0 {
		return 0, nil
	}

	ids := make([]uint, 0, len(victims))
	for _, v := range victims {
		ids = append(ids, v.ID)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("snapshot_id IN ?", ids).Delete(&model.File{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&model.Snapshot{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	logger.Log.Info("snapshots pruned",
		zap.String("job", jobID),
		zap.Int("removed", len(victims)),
		zap.Int("kept", keepLast))

	return len(victims), nil
}

// LatestSnapshot returns the newest snapshot for a job.
func (s *Store) LatestSnapshot(jobID string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.Where("job_id = ?", jobID).Order("created_at desc").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return snap, &model.NotFoundError{Kind: "snapshot for job", ID: jobID}
	}
	return snap, err
}

// SnapshotFiles returns the file index of one snapshot.
func (s *Store) SnapshotFiles(snapshotID string) ([]model.File, error) {
	var snap model.Snapshot
	err := s.db.Where("snapshot_id = ?", snapshotID).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &model.NotFoundError{Kind: "snapshot", ID: snapshotID}
	}
	if err != nil {
		return nil, err
	}

	var files []model.File
	return files, s.db.Where("snapshot_id = ?", snap.ID).Order("path asc").Find(&files).Error
}

// PurgeJob removes every snapshot, file row and recorded run for a
// job. Used when a job is deleted and by the dev harness.
func (s *Store) PurgeJob(jobID string) error {
	lock := s.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	var ids []uint
	if err := s.db.Model(&model.Snapshot{}).Where("job_id = ?", jobID).Pluck("id", &ids).Error; err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if len(ids) > 0 {
			if err := tx.Where("snapshot_id IN ?", ids).Delete(&model.File{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", ids).Delete(&model.Snapshot{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("job_id = ?", jobID).Delete(&model.JobRun{}).Error
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.jobLocks, jobID)
	s.mu.Unlock()
	return nil
}

// RecordRun persists a terminal run so history survives restarts.
// Non-terminal runs are never written.
func (s *Store) RecordRun(run model.JobRun) error {
	if run.Status != model.StatusSuccess && run.Status != model.StatusFailed {
		return fmt.Errorf("refusing to record non-terminal run %s (%s)", run.RunID, run.Status)
	}
	return s.db.Create(&run).Error
}

// RecentRuns returns terminal runs, newest first. An empty jobID
// covers every job.
func (s *Store) RecentRuns(jobID string, limit int) ([]model.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}

	q := s.db.Order("started_at desc").Limit(limit)
	if jobID != "" {
		q = q.Where("job_id = ?", jobID)
	}

	var runs []model.JobRun
	return runs, q.Find(&runs).Error
}
