package rsync

import (
	"testing"

	"amber/internal/model"
)

func TestParseProgressLine(t *testing.T) {
	ev, ok := Parse("job1", "         16,384  50%    4.00MB/s    0:00:30 (xfr#2, to-chk=5/10)")
	if !ok {
		t.Fatal("ok = false, want true")
	}
	if ev.Type != model.EventProgress {
		t.Fatalf("type = %v, want %v", ev.Type, model.EventProgress)
	}

	p := ev.Progress
	if p.TransferredBytes != 16384 {
		t.Errorf("transferred = %d, want 16384", p.TransferredBytes)
	}
	if p.Percentage != 50 {
		t.Errorf("percentage = %d, want 50", p.Percentage)
	}
	if p.SpeedBytesPerSec == nil || *p.SpeedBytesPerSec != 4.00*(1<<20) {
		t.Errorf("speed = %v, want %v", p.SpeedBytesPerSec, 4.00*(1<<20))
	}
	if p.ETASeconds == nil || *p.ETASeconds != 30 {
		t.Errorf("eta = %v, want 30", p.ETASeconds)
	}
}

func TestParseNonProgressIsLog(t *testing.T) {
	ev, ok := Parse("job1", "docs/report.pdf")
	if !ok {
		t.Fatal("ok = false, want true")
	}
	if ev.Type != model.EventLog {
		t.Fatalf("type = %v, want %v", ev.Type, model.EventLog)
	}
	if ev.Message != "docs/report.pdf" {
		t.Errorf("message = %q, want %q", ev.Message, "docs/report.pdf")
	}
}

func TestParseBlankLineDropped(t *testing.T) {
	if _, ok := Parse("job1", "   "); ok {
		t.Fatal("ok = true, want false")
	}
}

func TestParseClampsPercentage(t *testing.T) {
	ev, ok := Parse("job1", "  1,000  150%  1.00KB/s  0:00:01")
	if !ok || ev.Type != model.EventProgress {
		t.Fatalf("expected progress event, got %+v ok=%v", ev, ok)
	}
	if ev.Progress.Percentage != 100 {
		t.Errorf("percentage = %d, want 100", ev.Progress.Percentage)
	}
}

func TestParseSpeedUnits(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"512B/s", 512},
		{"1.50KB/s", 1.5 * (1 << 10)},
		{"2.00MB/s", 2 * (1 << 20)},
		{"1.00GB/s", 1 << 30},
	}

	for _, tt := range tests {
		got := parseSpeed(tt.in)
		if got == nil {
			t.Errorf("parseSpeed(%q) = nil, want %v", tt.in, tt.want)
			continue
		}
		if *got != tt.want {
			t.Errorf("parseSpeed(%q) = %v, want %v", tt.in, *got, tt.want)
		}
	}
}

func TestParseSpeedGarbageIsNil(t *testing.T) {
	if got := parseSpeed("??B/s"); got != nil {
		t.Errorf("parseSpeed = %v, want nil", *got)
	}
}

func TestParseETA(t *testing.T) {
	got := parseETA("1:02:03")
	if got == nil || *got != 3723 {
		t.Fatalf("parseETA = %v, want 3723", got)
	}

	if bad := parseETA("later"); bad != nil {
		t.Errorf("parseETA(garbage) = %v, want nil", *bad)
	}
}

func TestIsChatter(t *testing.T) {
	if !isChatter("sending incremental file list") {
		t.Error("sending line should be chatter")
	}
	if !isChatter("total size is 1,024  speedup is 1.00") {
		t.Error("total line should be chatter")
	}
	if isChatter("docs/report.pdf") {
		t.Error("file path should not be chatter")
	}
}
