package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"amber/internal/db"
	"amber/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "amber.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return NewStore(gdb)
}

func successRun(jobID string) model.JobRun {
	now := time.Now()
	return model.JobRun{
		RunID:     uuid.NewString(),
		JobID:     jobID,
		Mode:      model.ModeTimeMachine,
		Status:    model.StatusSuccess,
		StartedAt: now,
		EndedAt:   &now,
	}
}

func TestCommitAndQuery(t *testing.T) {
	s := testStore(t)

	files := []model.FileEntry{
		{Path: "/docs/a.txt", Size: 100},
		{Path: "/docs/b.txt", Size: 200},
	}
	snap, err := s.Commit(successRun("j1"), files)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if snap.FileCount != 2 {
		t.Errorf("fileCount = %d, want 2", snap.FileCount)
	}
	if snap.TotalSizeBytes != 300 {
		t.Errorf("totalSizeBytes = %d, want 300", snap.TotalSizeBytes)
	}

	snaps, err := s.Query("j1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if snaps[0].SnapshotID != snap.SnapshotID {
		t.Errorf("snapshotId = %q, want %q", snaps[0].SnapshotID, snap.SnapshotID)
	}
}

func TestQueryNewestFirst(t *testing.T) {
	s := testStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		snap, err := s.Commit(successRun("j1"), []model.FileEntry{{Path: "/x", Size: 1}})
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		ids = append(ids, snap.SnapshotID)
		time.Sleep(2 * time.Millisecond)
	}

	snaps, err := s.Query("j1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("snapshots = %d, want 3", len(snaps))
	}
	if snaps[0].SnapshotID != ids[2] || snaps[2].SnapshotID != ids[0] {
		t.Errorf("order = [%s %s %s], want newest first", snaps[0].SnapshotID, snaps[1].SnapshotID, snaps[2].SnapshotID)
	}
}

func TestQueryRange(t *testing.T) {
	s := testStore(t)

	before := time.Now().Add(-time.Minute)
	if _, err := s.Commit(successRun("j1"), nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	after := time.Now().Add(time.Minute)

	snaps, err := s.Query("j1", before, after)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("in-range snapshots = %d, want 1", len(snaps))
	}

	snaps, err = s.Query("j1", after, time.Time{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("out-of-range snapshots = %d, want 0", len(snaps))
	}
}

func TestCommitRejectsFailedRun(t *testing.T) {
	s := testStore(t)

	run := successRun("j1")
	run.Status = model.StatusFailed

	_, err := s.Commit(run, nil)
	var invalid *model.InvalidCommitError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidCommitError", err)
	}
}

func TestCommitRejectsNonTimeMachineRun(t *testing.T) {
	s := testStore(t)

	run := successRun("j1")
	run.Mode = model.ModeMirror

	_, err := s.Commit(run, nil)
	var invalid *model.InvalidCommitError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidCommitError", err)
	}

	snaps, err := s.Query("j1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("snapshots = %d, want 0 after rejected commit", len(snaps))
	}
}

func TestSearchPathsMatchesFileName(t *testing.T) {
	s := testStore(t)

	_, err := s.Commit(successRun("j1"), []model.FileEntry{
		{Path: "/b/c.txt", Size: 1},
		{Path: "/b/other.log", Size: 1},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	results, err := s.SearchPaths("c.txt", "", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if len(results[0].Paths) != 1 || results[0].Paths[0] != "/b/c.txt" {
		t.Errorf("paths = %v, want [/b/c.txt]", results[0].Paths)
	}
}

func TestSearchPathsGroupsBySnapshotNewestFirst(t *testing.T) {
	s := testStore(t)

	first, err := s.Commit(successRun("j1"), []model.FileEntry{{Path: "/report.pdf", Size: 1}})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := s.Commit(successRun("j1"), []model.FileEntry{
		{Path: "/report.pdf", Size: 1},
		{Path: "/old-report.pdf", Size: 1},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	results, err := s.SearchPaths("report", "", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Snapshot.SnapshotID != second.SnapshotID {
		t.Errorf("first group = %q, want newest snapshot %q", results[0].Snapshot.SnapshotID, second.SnapshotID)
	}
	if results[1].Snapshot.SnapshotID != first.SnapshotID {
		t.Errorf("second group = %q, want %q", results[1].Snapshot.SnapshotID, first.SnapshotID)
	}
	if len(results[0].Paths) != 2 {
		t.Errorf("newest group paths = %v, want both matches", results[0].Paths)
	}
}

func TestSearchPathsFiltersByJob(t *testing.T) {
	s := testStore(t)

	if _, err := s.Commit(successRun("j1"), []model.FileEntry{{Path: "/shared.txt", Size: 1}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := s.Commit(successRun("j2"), []model.FileEntry{{Path: "/shared.txt", Size: 1}}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	results, err := s.SearchPaths("shared", "j2", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Snapshot.JobID != "j2" {
		t.Errorf("jobId = %q, want j2", results[0].Snapshot.JobID)
	}
}

func TestRebuildIndexPreservesResults(t *testing.T) {
	s := testStore(t)

	if _, err := s.Commit(successRun("j1"), []model.FileEntry{{Path: "/docs/notes.md", Size: 1}}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	before, err := s.SearchPaths("notes", "", 10)
	if err != nil {
		t.Fatalf("search before: %v", err)
	}

	if err := s.RebuildIndex(); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	after, err := s.SearchPaths("notes", "", 10)
	if err != nil {
		t.Fatalf("search after: %v", err)
	}

	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("results before/after = %d/%d, want 1/1", len(before), len(after))
	}
	if before[0].Paths[0] != after[0].Paths[0] {
		t.Errorf("results differ after rebuild: %v vs %v", before[0].Paths, after[0].Paths)
	}
}

func TestFtsQueryQuoting(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"c.txt", `"c.txt"*`},
		{"report", `"report"*`},
		{"doc*", "doc*"},
		{`"exact phrase"`, `"exact phrase"`},
	}

	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStats(t *testing.T) {
	s := testStore(t)

	if _, err := s.Commit(successRun("j1"), []model.FileEntry{
		{Path: "/a", Size: 10},
		{Path: "/b", Size: 20},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.SnapshotCount != 1 {
		t.Errorf("snapshotCount = %d, want 1", stats.SnapshotCount)
	}
	if stats.FileCount != 2 {
		t.Errorf("fileCount = %d, want 2", stats.FileCount)
	}
	if stats.TotalSizeBytes != 30 {
		t.Errorf("totalSizeBytes = %d, want 30", stats.TotalSizeBytes)
	}
	if stats.IndexEntryCount != 2 {
		t.Errorf("indexEntryCount = %d, want 2", stats.IndexEntryCount)
	}
	if stats.StorageSizeBytes <= 0 {
		t.Errorf("storageSizeBytes = %d, want > 0", stats.StorageSizeBytes)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	s := testStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		snap, err := s.Commit(successRun("j1"), []model.FileEntry{{Path: "/x", Size: 1}})
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		ids = append(ids, snap.SnapshotID)
		time.Sleep(2 * time.Millisecond)
	}

	removed, err := s.Prune("j1", 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	snaps, err := s.Query("j1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("remaining = %d, want 2", len(snaps))
	}
	if snaps[0].SnapshotID != ids[4] || snaps[1].SnapshotID != ids[3] {
		t.Errorf("kept %q and %q, want the two newest", snaps[0].SnapshotID, snaps[1].SnapshotID)
	}

	// Pruned file rows are gone from search too.
	var fileCount int64
	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	fileCount = stats.FileCount
	if fileCount != 2 {
		t.Errorf("fileCount = %d, want 2", fileCount)
	}
}

func TestPruneNothingToRemove(t *testing.T) {
	s := testStore(t)

	if _, err := s.Commit(successRun("j1"), nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	removed, err := s.Prune("j1", 5)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestRecordRunRejectsNonTerminal(t *testing.T) {
	s := testStore(t)

	run := successRun("j1")
	run.Status = model.StatusRunning
	if err := s.RecordRun(run); err == nil {
		t.Error("recording a RUNNING run should fail")
	}

	run.Status = model.StatusIdle
	if err := s.RecordRun(run); err == nil {
		t.Error("recording an IDLE run should fail")
	}
}

func TestRecentRuns(t *testing.T) {
	s := testStore(t)

	for i := 0; i < 3; i++ {
		run := successRun("j1")
		run.StartedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := s.RecordRun(run); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	other := successRun("j2")
	other.Status = model.StatusFailed
	other.Code = model.CodeExitNonzero
	if err := s.RecordRun(other); err != nil {
		t.Fatalf("record other: %v", err)
	}

	runs, err := s.RecentRuns("j1", 2)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Error("runs not ordered newest first")
	}

	all, err := s.RecentRuns("", 10)
	if err != nil {
		t.Fatalf("recent runs all: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all runs = %d, want 4", len(all))
	}
}

func TestLatestSnapshot(t *testing.T) {
	s := testStore(t)

	if _, err := s.LatestSnapshot("j1"); err == nil {
		t.Error("latest on empty store should fail")
	}

	if _, err := s.Commit(successRun("j1"), nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	newest, err := s.Commit(successRun("j1"), nil)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.LatestSnapshot("j1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.SnapshotID != newest.SnapshotID {
		t.Errorf("latest = %q, want %q", got.SnapshotID, newest.SnapshotID)
	}
}

func TestSnapshotFiles(t *testing.T) {
	s := testStore(t)

	snap, err := s.Commit(successRun("j1"), []model.FileEntry{
		{Path: "/b/c.txt", Size: 5},
		{Path: "/a.txt", Size: 3},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	files, err := s.SnapshotFiles(snap.SnapshotID)
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}
	if files[0].Path != "/a.txt" || files[1].Path != "/b/c.txt" {
		t.Errorf("order = [%s %s], want path ascending", files[0].Path, files[1].Path)
	}
	if files[1].Name != "c.txt" {
		t.Errorf("name = %q, want c.txt", files[1].Name)
	}

	var notFound *model.NotFoundError
	if _, err := s.SnapshotFiles("missing"); !errors.As(err, &notFound) {
		t.Errorf("err = %v, want NotFoundError", err)
	}
}

func TestPurgeJob(t *testing.T) {
	s := testStore(t)

	if _, err := s.Commit(successRun("j1"), []model.FileEntry{{Path: "/x", Size: 1}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.RecordRun(successRun("j1")); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := s.PurgeJob("j1"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	snaps, err := s.Query("j1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("snapshots = %d, want 0", len(snaps))
	}

	runs, err := s.RecentRuns("j1", 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %d, want 0", len(runs))
	}

	s.mu.Lock()
	_, held := s.jobLocks["j1"]
	s.mu.Unlock()
	if held {
		t.Error("job lock still registered after purge")
	}
}
