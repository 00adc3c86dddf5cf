package downloader

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tanq16/rangeload/internal/utils"
)

type entryHarness struct {
	entry  *Entry
	sink   chan Event
	outDir string
	temp   string
}

func newEntryHarness(t *testing.T, src *fakeSource, parallelism int) *entryHarness {
	t.Helper()
	outDir := t.TempDir()
	cfg := entryConfig{
		outDir:      outDir,
		tempDir:     filepath.Join(outDir, utils.TempDirName),
		parallelism: parallelism,
		bufferSize:  16,
	}
	sink := make(chan Event, 4096)
	entry := newEntry(context.Background(), NewEntryID(), "fake://resource", "out.bin", src, cfg, sink)
	t.Cleanup(entry.Delete)
	return &entryHarness{entry: entry, sink: sink, outDir: outDir, temp: cfg.tempDir}
}

// waitFor consumes events until one matches.
func (h *entryHarness) waitFor(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.sink:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func (h *entryHarness) waitKind(t *testing.T, kind EventKind) Event {
	t.Helper()
	return h.waitFor(t, func(ev Event) bool { return ev.Kind == kind })
}

func (h *entryHarness) tempFiles(t *testing.T) []string {
	t.Helper()
	files, err := os.ReadDir(h.temp)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	return names
}

func TestEntryDownloadsAndMerges(t *testing.T) {
	data := payload(1000)
	src := newFakeSource(data)
	h := newEntryHarness(t, src, 4)
	h.entry.Start()

	sized := h.waitKind(t, EventEntrySized)
	if sized.Total != 1000 || sized.Segments != 4 {
		t.Fatalf("sized = %+v", sized)
	}
	done := h.waitKind(t, EventEntrySucceeded)
	if done.Path != filepath.Join(h.outDir, "out.bin") {
		t.Errorf("path = %q", done.Path)
	}
	got, err := os.ReadFile(done.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("merged file differs from source")
	}
	for _, rng := range []Range{{0, 249}, {250, 499}, {500, 749}, {750, 999}} {
		if n := src.requestCount(rng.Start, rng.End); n != 1 {
			t.Errorf("range %v requested %d times", rng, n)
		}
	}
	if files := h.tempFiles(t); len(files) != 0 {
		t.Errorf("temp files left: %v", files)
	}
	if h.entry.Status() != StatusSucceeded {
		t.Errorf("status = %v", h.entry.Status())
	}
	if err := h.entry.Restart(); !errors.Is(err, ErrNotRestartable) {
		t.Errorf("Restart after success: err = %v", err)
	}
}

func TestEntryMergeOrderIgnoresCompletionOrder(t *testing.T) {
	data := payload(1000)
	src := newFakeSource(data)
	release := src.gate(0)
	h := newEntryHarness(t, src, 4)
	h.entry.Start()

	succeeded := map[int]bool{}
	h.waitFor(t, func(ev Event) bool {
		if ev.Kind == EventSegmentSucceeded {
			if ev.Segment == 0 {
				t.Fatal("segment 0 finished while held")
			}
			succeeded[ev.Segment] = true
		}
		return len(succeeded) == 3
	})
	close(release)
	done := h.waitKind(t, EventEntrySucceeded)
	got, err := os.ReadFile(done.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("merged file differs from source")
	}
}

func TestEntryFailedSegmentIsolatedAndRestarted(t *testing.T) {
	data := payload(1000)
	src := newFakeSource(data)
	src.failures[250] = 1
	h := newEntryHarness(t, src, 4)
	h.entry.Start()

	results := map[int]EventKind{}
	h.waitFor(t, func(ev Event) bool {
		if ev.Kind == EventSegmentSucceeded || ev.Kind == EventSegmentFailed {
			results[ev.Segment] = ev.Kind
		}
		if ev.Kind == EventEntrySucceeded {
			t.Fatal("entry succeeded with a failed segment")
		}
		return ev.Kind == EventEntrySettled
	})
	want := map[int]EventKind{0: EventSegmentSucceeded, 1: EventSegmentFailed, 2: EventSegmentSucceeded, 3: EventSegmentSucceeded}
	for i, kind := range want {
		if results[i] != kind {
			t.Errorf("segment %d ended with %v, want %v", i, results[i], kind)
		}
	}
	if h.entry.Status() != StatusPartiallyFailed {
		t.Errorf("status = %v, want partially-failed", h.entry.Status())
	}
	if files := h.tempFiles(t); len(files) != 3 {
		t.Errorf("temp files = %v, want the three succeeded segments", files)
	}
	if _, err := os.Stat(filepath.Join(h.outDir, "out.bin")); !os.IsNotExist(err) {
		t.Errorf("destination exists before all segments succeeded: %v", err)
	}

	if err := h.entry.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	restarted := h.waitKind(t, EventSegmentRestarted)
	if restarted.Segment != 1 {
		t.Errorf("restarted segment %d, want 1", restarted.Segment)
	}
	done := h.waitKind(t, EventEntrySucceeded)
	got, err := os.ReadFile(done.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("merged file differs from source")
	}
	if n := src.requestCount(250, 499); n != 2 {
		t.Errorf("failed range requested %d times, want 2", n)
	}
	for _, rng := range []Range{{0, 249}, {500, 749}, {750, 999}} {
		if n := src.requestCount(rng.Start, rng.End); n != 1 {
			t.Errorf("succeeded range %v requested %d times, want 1", rng, n)
		}
	}
}

func TestEntrySettlesWhenLastSegmentSucceeds(t *testing.T) {
	data := payload(1000)
	src := newFakeSource(data)
	src.failures[0] = 1
	release := src.gate(750)
	h := newEntryHarness(t, src, 4)
	h.entry.Start()

	h.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventSegmentFailed && ev.Segment == 0
	})
	close(release)
	h.waitFor(t, func(ev Event) bool {
		if ev.Kind == EventEntrySucceeded {
			t.Fatal("entry succeeded with a failed segment")
		}
		return ev.Kind == EventEntrySettled
	})
	if h.entry.Status() != StatusPartiallyFailed {
		t.Fatalf("status = %v, want partially-failed", h.entry.Status())
	}

	if err := h.entry.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	done := h.waitKind(t, EventEntrySucceeded)
	got, err := os.ReadFile(done.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("merged file differs from source")
	}
}

func TestEntryRestartWhileSizing(t *testing.T) {
	src := newFakeSource(payload(100))
	src.probeHold = make(chan struct{})
	h := newEntryHarness(t, src, 2)
	h.entry.Start()
	h.waitKind(t, EventEntrySizing)

	result := make(chan error, 1)
	go func() { result <- h.entry.Restart() }()
	select {
	case err := <-result:
		if !errors.Is(err, ErrNotRestartable) {
			t.Errorf("err = %v, want ErrNotRestartable", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Restart blocked while the entry was sizing")
	}
	close(src.probeHold)
	h.waitKind(t, EventEntrySucceeded)
}

func TestEntryEmptyResourceFails(t *testing.T) {
	src := newFakeSource(nil)
	h := newEntryHarness(t, src, 4)
	h.entry.Start()
	ev := h.waitFor(t, func(ev Event) bool {
		if ev.Kind == EventEntrySized || ev.Kind == EventEntrySucceeded {
			t.Fatalf("unexpected %v for an empty resource", ev.Kind)
		}
		return ev.Kind == EventEntryFailed
	})
	if !errors.Is(ev.Err, ErrEmptyResource) {
		t.Errorf("err = %v, want ErrEmptyResource", ev.Err)
	}
	<-h.entry.Done()
	if h.entry.Status() != StatusFailed {
		t.Errorf("status = %v", h.entry.Status())
	}
	if len(src.requests) != 0 {
		t.Errorf("segments requested for an empty resource: %v", src.requests)
	}
}

func TestEntryProbeFailure(t *testing.T) {
	src := newFakeSource(payload(10))
	src.probeErr = errors.New("no such host")
	h := newEntryHarness(t, src, 2)
	h.entry.Start()
	ev := h.waitKind(t, EventEntryFailed)
	if ev.Err == nil || !errors.Is(ev.Err, src.probeErr) {
		t.Errorf("err = %v", ev.Err)
	}
}

func TestEntryDeleteRemovesSucceededTempFiles(t *testing.T) {
	src := newFakeSource(payload(1000))
	src.gate(0)
	h := newEntryHarness(t, src, 4)
	h.entry.Start()

	succeeded := 0
	h.waitFor(t, func(ev Event) bool {
		if ev.Kind == EventSegmentSucceeded {
			succeeded++
		}
		return succeeded == 3
	})
	if files := h.tempFiles(t); len(files) != 4 {
		t.Fatalf("temp files = %v, want 4 before delete", files)
	}
	if err := h.entry.Restart(); err != nil {
		t.Errorf("Restart without failed segments: %v", err)
	}

	h.entry.Delete()
	if files := h.tempFiles(t); len(files) != 0 {
		t.Errorf("temp files left after delete: %v", files)
	}
	if _, err := os.Stat(filepath.Join(h.outDir, "out.bin")); !os.IsNotExist(err) {
		t.Errorf("destination created for a deleted entry: %v", err)
	}
	if h.entry.Status() != StatusDeleted {
		t.Errorf("status = %v", h.entry.Status())
	}
	if err := h.entry.Restart(); !errors.Is(err, ErrNotRestartable) {
		t.Errorf("Restart after delete: err = %v", err)
	}
	h.entry.Delete()
}

func TestEntryDeleteBeforeStart(t *testing.T) {
	h := newEntryHarness(t, newFakeSource(payload(10)), 2)
	h.entry.Delete()
	h.entry.Start()
	select {
	case <-h.entry.Done():
	default:
		t.Fatal("entry not done after delete")
	}
}

func TestEntryKeepsExistingDestination(t *testing.T) {
	data := payload(300)
	h := newEntryHarness(t, newFakeSource(data), 3)
	existing := filepath.Join(h.outDir, "out.bin")
	if err := os.WriteFile(existing, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	h.entry.Start()
	done := h.waitKind(t, EventEntrySucceeded)
	if done.Path != filepath.Join(h.outDir, "out-(1).bin") {
		t.Errorf("path = %q", done.Path)
	}
	if got, _ := os.ReadFile(existing); string(got) != "old" {
		t.Errorf("existing file overwritten: %q", got)
	}
	if got, _ := os.ReadFile(done.Path); !bytes.Equal(got, data) {
		t.Error("merged file differs from source")
	}
}
