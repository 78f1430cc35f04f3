package model

import "time"

// Snapshot is the durable artifact of a successful TIME_MACHINE run.
// Immutable after commit; rows disappear only through retention pruning.
type Snapshot struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	SnapshotID     string    `gorm:"uniqueIndex;not null" json:"snapshotId"`
	JobID          string    `gorm:"index:idx_snapshots_job_created,priority:1;not null" json:"jobId"`
	RunID          string    `gorm:"not null" json:"runId"`
	CreatedAt      time.Time `gorm:"index:idx_snapshots_job_created,priority:2" json:"createdAt"`
	FileCount      int64     `json:"fileCount"`
	TotalSizeBytes int64     `json:"totalSizeBytes"`
}

// File is one fileIndex entry of a snapshot. The FTS index over
// (name, path) is derived from these rows and rebuildable from them.
type File struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	SnapshotID uint   `gorm:"index;not null" json:"-"`
	Path       string `gorm:"not null" json:"path"`
	Name       string `gorm:"not null" json:"name"`
	Size       int64  `json:"size"`
}

// FileEntry is the commit-time input describing one file of a snapshot.
type FileEntry struct {
	Path string
	Size int64
}

type DiskStatus string

const (
	DiskAvailable   DiskStatus = "AVAILABLE"
	DiskUnavailable DiskStatus = "UNAVAILABLE"
)

// DiskStats is a point-in-time probe result, never cached.
type DiskStats struct {
	TotalBytes uint64     `json:"totalBytes"`
	FreeBytes  uint64     `json:"freeBytes"`
	Status     DiskStatus `json:"status"`
}
