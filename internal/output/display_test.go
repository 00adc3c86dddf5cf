package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/rangeload/internal/downloader"
)

func TestRenderRows(t *testing.T) {
	now := time.Now()
	rows := []downloader.Download{
		{
			Name:    "done.bin",
			Status:  downloader.StatusSucceeded,
			Total:   2048,
			Started: now.Add(-3 * time.Second),
			Ready:   true,
		},
		{
			Name:     "active.bin",
			Status:   downloader.StatusActive,
			Total:    4096,
			Started:  now.Add(-2 * time.Second),
			Segments: []downloader.Progress{{Value: 1, Bytes: 1024}, {Value: 0.5, Bytes: 512}, {Failed: true}, {}},
		},
	}
	lines := renderRows(rows, now, 20)
	if len(lines) != 4 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "Downloading active.bin") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "37.5%") || !strings.Contains(lines[1], "1.5 KiB / 4.0 KiB") {
		t.Errorf("progress line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "█") || !strings.Contains(lines[2], "✗") {
		t.Errorf("segment strip = %q", lines[2])
	}
	if !strings.Contains(lines[3], "Completed done.bin (2.0 KiB)") {
		t.Errorf("finished line = %q", lines[3])
	}
}

func TestRenderRowsTrimsFinished(t *testing.T) {
	var rows []downloader.Download
	for range 10 {
		rows = append(rows, downloader.Download{Name: "f", Status: downloader.StatusFailed, Error: "boom"})
	}
	lines := renderRows(rows, time.Now(), 4)
	if len(lines) != 4 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "7 finished downloads hidden") {
		t.Errorf("first line = %q", lines[0])
	}
}

func TestSegmentStrip(t *testing.T) {
	strip := segmentStrip([]downloader.Progress{{Value: 0}, {Value: 0.5}, {Value: 1}, {Failed: true}})
	for _, want := range []string{" ", "▄", "█", "✗"} {
		if !strings.Contains(strip, want) {
			t.Errorf("strip %q missing %q", strip, want)
		}
	}
}

func TestSummaryLines(t *testing.T) {
	rows := []downloader.Download{
		{Name: "a", Status: downloader.StatusSucceeded},
		{Name: "b", Status: downloader.StatusFailed},
		{Name: "c", Status: downloader.StatusPartiallyFailed},
	}
	reports := []ErrorReport{{Name: "c", Segment: 2, Message: "connection reset", Time: time.Now()}}
	text := strings.Join(summaryLines(rows, reports, 80), "\n")
	for _, want := range []string{"Completed 1 of 3", "Failed 2 of 3", "c segment 2", "connection reset"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestDisplayNotifyAndStop(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(downloader.NewState(), &buf)
	d.height = 24
	d.Notify(downloader.Notification{Level: downloader.NotifyInfo, Name: "a", Segment: -1, Message: "download completed"})
	d.Notify(downloader.Notification{Level: downloader.NotifyError, Name: "b", Segment: -1, Message: "resource is empty"})
	if reports := d.Errors(); len(reports) != 1 || reports[0].Name != "b" {
		t.Fatalf("errors = %+v", reports)
	}
	d.Start()
	d.RequestRefresh()
	d.Stop()
	d.Stop()
	if !strings.Contains(buf.String(), "Completed 0 of 0") || !strings.Contains(buf.String(), "resource is empty") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText(strings.Repeat("a", 25), 11)
	if len(lines) != 3 || lines[0] != strings.Repeat("a", 11) || lines[2] != "aaa" {
		t.Errorf("lines = %q", lines)
	}
}
