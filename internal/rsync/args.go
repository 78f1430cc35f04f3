package rsync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"amber/internal/model"
)

// SnapshotFolderFormat names per-run snapshot directories under the
// destination root for TIME_MACHINE jobs.
const SnapshotFolderFormat = "2006-01-02-150405"

// LatestLink is the symlink inside a TIME_MACHINE destination pointing
// at the most recent complete snapshot.
const LatestLink = "latest"

// BuildArgs constructs the rsync argv for one run. For TIME_MACHINE
// jobs it also returns the snapshot directory the run writes into;
// for every other mode snapshotDir is empty.
func BuildArgs(job model.Job, now time.Time) (args []string, snapshotDir string) {
	src := job.Source
	if !strings.HasSuffix(src, "/") {
		src += "/"
	}

	switch job.Mode {
	case model.ModeMirror:
		args = []string{"-a", "--delete"}
	case model.ModeArchive:
		args = []string{"-a"}
	case model.ModeTimeMachine:
		folder := now.Format(SnapshotFolderFormat)
		snapshotDir = filepath.Join(job.Dest, folder)
		args = []string{"-a", "--link-dest=" + filepath.Join(job.Dest, LatestLink)}
	case model.ModeCloud:
		args = []string{"-az"}
	default:
		args = []string{"-a"}
	}

	for _, pattern := range job.ExcludePatterns {
		args = append(args, "--exclude="+pattern)
	}

	args = append(args, "--progress", src)
	if snapshotDir != "" {
		args = append(args, snapshotDir)
	} else {
		args = append(args, job.Dest)
	}

	return args, snapshotDir
}

// UpdateLatestSymlink repoints <destRoot>/latest at folderName after a
// snapshot completes.
func UpdateLatestSymlink(destRoot, folderName string) error {
	link := filepath.Join(destRoot, LatestLink)

	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old latest link: %w", err)
	}
	if err := os.Symlink(folderName, link); err != nil {
		return fmt.Errorf("failed to update latest link: %w", err)
	}

	return nil
}
