package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SyncMode string

const (
	ModeMirror      SyncMode = "MIRROR"
	ModeArchive     SyncMode = "ARCHIVE"
	ModeTimeMachine SyncMode = "TIME_MACHINE"
	ModeCloud       SyncMode = "CLOUD"
)

func (m SyncMode) Valid() bool {
	switch m {
	case ModeMirror, ModeArchive, ModeTimeMachine, ModeCloud:
		return true
	default:
		return false
	}
}

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Job is a configured source→destination backup, not a running instance.
type Job struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	Name            string    `json:"name"`
	Source          string    `gorm:"not null" json:"source"`
	Dest            string    `gorm:"not null" json:"dest"`
	Mode            SyncMode  `gorm:"not null" json:"mode"`
	ExcludePatterns []string  `gorm:"serializer:json" json:"excludePatterns"`
	Schedule        string    `json:"schedule,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Scheduled reports whether the job carries a cron schedule.
func (j Job) Scheduled() bool { return j.Schedule != "" }

// Validate rejects malformed jobs at the boundary, before anything is
// spawned or registered.
func (j Job) Validate() error {
	if j.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if !jobIDPattern.MatchString(j.ID) {
		return &ValidationError{Field: "id", Reason: "may only contain letters, digits, '-' and '_'"}
	}
	if j.Source == "" {
		return &ValidationError{Field: "source", Reason: "must not be empty"}
	}
	if j.Dest == "" {
		return &ValidationError{Field: "dest", Reason: "must not be empty"}
	}
	if !j.Mode.Valid() {
		return &ValidationError{Field: "mode", Reason: "unknown sync mode"}
	}
	if j.Mode == ModeCloud && !strings.Contains(j.Dest, ":") {
		return &ValidationError{Field: "dest", Reason: "cloud destination must be host:path or user@host:path"}
	}
	if j.Schedule != "" {
		if _, err := cron.ParseStandard(j.Schedule); err != nil {
			return &ValidationError{Field: "schedule", Reason: "not a valid cron expression"}
		}
	}
	return nil
}
