package rsync

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"amber/internal/model"
)

// progressRe matches rsync --progress lines like:
// "         16,384  50%    4.00MB/s    0:00:30 (xfr#2, to-chk=5/10)"
var progressRe = regexp.MustCompile(`^\s*([\d,]+)\s+(\d+)%\s+([\d.]+[KMG]?B/s)\s+(\d+:\d+:\d+)`)

// Parse classifies one line of process output. Progress lines become
// progress events, everything else a log event; nothing is dropped
// except blank lines (ok=false). Percentages are clamped to [0,100];
// speed and eta that fail to parse stay nil rather than turning into
// garbage values.
func Parse(jobID, line string) (model.Event, bool) {
	if strings.TrimSpace(line) == "" {
		return model.Event{}, false
	}

	caps := progressRe.FindStringSubmatch(line)
	if caps == nil {
		return model.Event{
			Type:      model.EventLog,
			JobID:     jobID,
			Timestamp: time.Now(),
			Message:   line,
		}, true
	}

	transferred, err := strconv.ParseInt(strings.ReplaceAll(caps[1], ",", ""), 10, 64)
	if err != nil {
		transferred = 0
	}

	percentage, err := strconv.Atoi(caps[2])
	if err != nil || percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}

	return model.Event{
		Type:      model.EventProgress,
		JobID:     jobID,
		Timestamp: time.Now(),
		Progress: &model.ProgressEvent{
			JobID:            jobID,
			TransferredBytes: transferred,
			Percentage:       percentage,
			SpeedBytesPerSec: parseSpeed(caps[3]),
			ETASeconds:       parseETA(caps[4]),
		},
	}, true
}

// parseSpeed converts "4.00MB/s" to bytes per second, nil if unknown.
func parseSpeed(s string) *float64 {
	s = strings.TrimSuffix(s, "B/s")

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "G")
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return nil
	}

	return new(value * multiplier)
}

// parseETA converts "H:MM:SS" to seconds, nil if unknown.
func parseETA(s string) *int {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil
	}

	total := 0
	for _, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 {
			return nil
		}
		total = total*60 + v
	}

	return new(total)
}

// isChatter reports whether a non-progress line is rsync bookkeeping
// output rather than a file path.
func isChatter(line string) bool {
	return strings.HasPrefix(line, "sending") ||
		strings.HasPrefix(line, "receiving") ||
		strings.HasPrefix(line, "total") ||
		strings.Contains(line, "files to consider")
}
