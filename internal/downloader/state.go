package downloader

import (
	"context"
	"sync"
	"time"
)

type Progress struct {
	Value  float64 `json:"value"`
	Bytes  int64   `json:"bytes"`
	Failed bool    `json:"failed"`
	Reason string  `json:"reason,omitempty"`
}

// Download is the externally visible row of one entry.
type Download struct {
	ID       EntryID     `json:"id"`
	URL      string      `json:"url"`
	Name     string      `json:"name"`
	Path     string      `json:"path,omitempty"`
	Total    int64       `json:"total"`
	Status   EntryStatus `json:"status"`
	Segments []Progress  `json:"segments"`
	Ready    bool        `json:"ready"`
	Restarts int         `json:"restarts"`
	Error    string      `json:"error,omitempty"`
	Started  time.Time   `json:"started"`
	Finished time.Time   `json:"finished,omitzero"`
}

// Received sums the bytes received by every segment.
func (d Download) Received() int64 {
	var n int64
	for _, p := range d.Segments {
		n += p.Bytes
	}
	return n
}

func (d Download) FailedSegments() int {
	n := 0
	for _, p := range d.Segments {
		if p.Failed {
			n++
		}
	}
	return n
}

func (d Download) clone() Download {
	d.Segments = append([]Progress(nil), d.Segments...)
	return d
}

// State is the download table shared with the presentation layer. Rows are
// added and removed by the manager's commands and updated by its aggregation
// task; the lock is held for one read or one update at a time.
type State struct {
	mu      sync.RWMutex
	rows    map[EntryID]*Download
	order   []EntryID
	changed chan struct{}
}

func NewState() *State {
	return &State{
		rows:    make(map[EntryID]*Download),
		changed: make(chan struct{}),
	}
}

func (s *State) Snapshot() []Download {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Download, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rows[id].clone())
	}
	return out
}

func (s *State) Get(id EntryID) (Download, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return Download{}, false
	}
	return row.clone(), true
}

// WaitFor blocks until pred holds for the row of id. The row argument is the
// zero value with ok=false once the entry is not in the table.
func (s *State) WaitFor(ctx context.Context, id EntryID, pred func(d Download, ok bool) bool) (Download, error) {
	for {
		s.mu.RLock()
		changed := s.changed
		row, ok := s.rows[id]
		var d Download
		if ok {
			d = row.clone()
		}
		s.mu.RUnlock()
		if pred(d, ok) {
			return d, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return d, ctx.Err()
		}
	}
}

func (s *State) add(d Download) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[d.ID]; !exists {
		s.order = append(s.order, d.ID)
	}
	s.rows[d.ID] = &d
	s.notifyLocked()
}

func (s *State) update(id EntryID, fn func(d *Download)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return false
	}
	fn(row)
	s.notifyLocked()
	return true
}

func (s *State) remove(id EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return
	}
	delete(s.rows, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.notifyLocked()
}

func (s *State) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
