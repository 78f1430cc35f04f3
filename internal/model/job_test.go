package model

import (
	"errors"
	"testing"
)

func validJob() Job {
	return Job{ID: "photos", Source: "/home/me/photos", Dest: "/backup/photos", Mode: ModeMirror}
}

func TestValidateAcceptsGoodJob(t *testing.T) {
	if err := validJob().Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsBadJobs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Job)
		wantFld string
	}{
		{"empty id", func(j *Job) { j.ID = "" }, "id"},
		{"id with spaces", func(j *Job) { j.ID = "my photos" }, "id"},
		{"id with slash", func(j *Job) { j.ID = "a/b" }, "id"},
		{"empty source", func(j *Job) { j.Source = "" }, "source"},
		{"empty dest", func(j *Job) { j.Dest = "" }, "dest"},
		{"unknown mode", func(j *Job) { j.Mode = "FAST" }, "mode"},
		{"cloud without remote dest", func(j *Job) { j.Mode = ModeCloud; j.Dest = "/local/path" }, "dest"},
		{"unparseable schedule", func(j *Job) { j.Schedule = "whenever" }, "schedule"},
		{"schedule with too many fields", func(j *Job) { j.Schedule = "0 0 2 * * *" }, "schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validJob()
			tt.mutate(&job)

			err := job.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tt.wantFld {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantFld)
			}
		})
	}
}

func TestValidateCloudRemoteDest(t *testing.T) {
	job := validJob()
	job.Mode = ModeCloud
	job.Dest = "user@host:/backups"

	if err := job.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateAcceptsCronSchedules(t *testing.T) {
	for _, expr := range []string{"0 2 * * *", "@daily", "@every 6h", "*/15 * * * *"} {
		job := validJob()
		job.Schedule = expr
		if err := job.Validate(); err != nil {
			t.Errorf("schedule %q rejected: %v", expr, err)
		}
	}
}

func TestSyncModeValid(t *testing.T) {
	for _, m := range []SyncMode{ModeMirror, ModeArchive, ModeTimeMachine, ModeCloud} {
		if !m.Valid() {
			t.Errorf("%s should be valid", m)
		}
	}
	if SyncMode("INCREMENTAL").Valid() {
		t.Error("unknown mode should be invalid")
	}
}
