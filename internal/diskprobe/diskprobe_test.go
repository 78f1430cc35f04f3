package diskprobe

import (
	"testing"

	"amber/internal/model"
)

func TestParseDF(t *testing.T) {
	out := `Filesystem     1K-blocks      Used Available Use% Mounted on
/dev/sda1      498796808 123456789 375340019  25% /
`
	total, free, err := parseDF(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if total != 498796808*1024 {
		t.Errorf("total = %d, want %d", total, uint64(498796808)*1024)
	}
	if free != 375340019*1024 {
		t.Errorf("free = %d, want %d", free, uint64(375340019)*1024)
	}
}

func TestParseDFMalformed(t *testing.T) {
	for _, out := range []string{
		"",
		"Filesystem 1K-blocks Used Available\n",
		"header\n/dev/sda1 lots used\n",
		"header\n/dev/sda1 abc def ghi jk\n",
	} {
		if _, _, err := parseDF(out); err == nil {
			t.Errorf("parseDF(%q) = nil error, want failure", out)
		}
	}
}

func TestStatMissingPathIsUnavailable(t *testing.T) {
	stats := Stat("/definitely/not/a/real/path-12345")
	if stats.Status != model.DiskUnavailable {
		t.Errorf("status = %v, want %v", stats.Status, model.DiskUnavailable)
	}
	if stats.TotalBytes != 0 || stats.FreeBytes != 0 {
		t.Errorf("stats = %+v, want zero sizes", stats)
	}
}

func TestStatExistingPath(t *testing.T) {
	stats := Stat(t.TempDir())
	if stats.Status != model.DiskAvailable {
		t.Skipf("df probe unavailable in this environment: %+v", stats)
	}
	if stats.TotalBytes == 0 {
		t.Error("totalBytes = 0, want > 0")
	}
}
