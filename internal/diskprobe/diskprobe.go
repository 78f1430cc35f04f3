package diskprobe

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"amber/internal/logger"
	"amber/internal/model"
)

// Stat probes free and total space for the filesystem containing
// path. It fails soft: any probe error yields UNAVAILABLE rather than
// an error, since disk stats are advisory and must never abort a job
// start.
func Stat(path string) model.DiskStats {
	out, err := exec.Command("df", "-k", "--", path).Output()
	if err != nil {
		logger.Log.Debug("disk probe failed",
			zap.String("path", path),
			zap.Error(err))
		return model.DiskStats{Status: model.DiskUnavailable}
	}

	total, free, err := parseDF(string(out))
	if err != nil {
		logger.Log.Debug("disk probe parse failed",
			zap.String("path", path),
			zap.Error(err))
		return model.DiskStats{Status: model.DiskUnavailable}
	}

	return model.DiskStats{
		TotalBytes: total,
		FreeBytes:  free,
		Status:     model.DiskAvailable,
	}
}

// parseDF extracts total and available bytes from `df -k` output.
func parseDF(out string) (total, free uint64, err error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return 0, 0, fmt.Errorf("unexpected df output: %d lines", len(lines))
	}

	fields := strings.Fields(lines[1])
	if len(fields) < 4 {
		return 0, 0, fmt.Errorf("unexpected df output: %d fields", len(fields))
	}

	totalKB, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse total: %w", err)
	}
	freeKB, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse available: %w", err)
	}

	return totalKB * 1024, freeKB * 1024, nil
}
