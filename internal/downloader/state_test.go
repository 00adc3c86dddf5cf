package downloader

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStateSnapshotIsCopy(t *testing.T) {
	s := NewState()
	s.add(Download{ID: "a", Name: "first", Segments: make([]Progress, 2)})
	s.add(Download{ID: "b", Name: "second"})

	rows := s.Snapshot()
	if len(rows) != 2 || rows[0].ID != "a" || rows[1].ID != "b" {
		t.Fatalf("snapshot = %+v", rows)
	}
	rows[0].Segments[0].Value = 0.5
	if got, _ := s.Get("a"); got.Segments[0].Value != 0 {
		t.Error("snapshot shares segment storage with the table")
	}

	s.remove("a")
	if _, ok := s.Get("a"); ok {
		t.Error("row still present after remove")
	}
	if rows := s.Snapshot(); len(rows) != 1 || rows[0].ID != "b" {
		t.Errorf("snapshot after remove = %+v", rows)
	}
}

func TestStateWaitForWakesOnUpdate(t *testing.T) {
	s := NewState()
	s.add(Download{ID: "a", Status: StatusActive})
	result := make(chan Download, 1)
	go func() {
		d, err := s.WaitFor(context.Background(), "a", func(d Download, ok bool) bool {
			return ok && d.Ready
		})
		if err == nil {
			result <- d
		}
	}()
	time.Sleep(10 * time.Millisecond)
	s.update("a", func(d *Download) { d.Status = StatusMerging })
	s.update("a", func(d *Download) {
		d.Status = StatusSucceeded
		d.Ready = true
	})
	select {
	case d := <-result:
		if d.Status != StatusSucceeded {
			t.Errorf("status = %v", d.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken")
	}
}

func TestStateWaitForRemoval(t *testing.T) {
	s := NewState()
	s.add(Download{ID: "a"})
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.remove("a")
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.WaitFor(ctx, "a", func(_ Download, ok bool) bool { return !ok }); err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
}

func TestStateWaitForContext(t *testing.T) {
	s := NewState()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.WaitFor(ctx, "missing", func(_ Download, ok bool) bool { return ok })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestDownloadCounters(t *testing.T) {
	d := Download{Segments: []Progress{{Bytes: 10}, {Bytes: 5, Failed: true}, {Bytes: 7}}}
	if d.Received() != 22 {
		t.Errorf("Received() = %d", d.Received())
	}
	if d.FailedSegments() != 1 {
		t.Errorf("FailedSegments() = %d", d.FailedSegments())
	}
}
