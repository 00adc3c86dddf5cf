// Package downloader is the segmented download engine.
//
// A Manager owns a set of entries. Each Entry probes the size of its resource,
// splits it with PlanRanges and runs one segment worker per range. Workers
// stream into private temp files; once every segment succeeded the entry
// concatenates the files in index order into the destination.
package downloader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrEmptyResource      = errors.New("resource is empty, nothing to split")
	ErrInvalidParallelism = errors.New("parallelism must be positive")
	ErrUnknownEntry       = errors.New("unknown entry")
	ErrNotRestartable     = errors.New("entry is not active")
	ErrManagerClosed      = errors.New("manager is not running")
	ErrSizeMismatch       = errors.New("size mismatch")
)

type EntryID string

func NewEntryID() EntryID {
	return EntryID(uuid.NewString())
}

// Short is the label used in temp file names.
func (id EntryID) Short() string {
	s := strings.ReplaceAll(string(id), "-", "")
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

type SegmentID struct {
	Entry EntryID
	Index int
}

func (s SegmentID) String() string {
	return fmt.Sprintf("%s#%d", s.Entry.Short(), s.Index)
}

// Range is an inclusive byte range.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Len() int64 {
	return r.End - r.Start + 1
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

type EntryStatus int

const (
	StatusPending EntryStatus = iota
	StatusSizing
	StatusActive
	StatusPartiallyFailed
	StatusMerging
	StatusSucceeded
	StatusFailed
	StatusDeleted
)

var statusNames = map[EntryStatus]string{
	StatusPending:         "pending",
	StatusSizing:          "sizing",
	StatusActive:          "active",
	StatusPartiallyFailed: "partially-failed",
	StatusMerging:         "merging",
	StatusSucceeded:       "succeeded",
	StatusFailed:          "failed",
	StatusDeleted:         "deleted",
}

func (s EntryStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s EntryStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *EntryStatus) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Terminal reports whether the entry will not change without a command.
func (s EntryStatus) Terminal() bool {
	switch s {
	case StatusPartiallyFailed, StatusSucceeded, StatusFailed, StatusDeleted:
		return true
	}
	return false
}

type segmentState int

const (
	segmentPending segmentState = iota
	segmentRequesting
	segmentStreaming
	segmentSucceeded
	segmentFailed
	segmentCancelled
)

func (s segmentState) String() string {
	return [...]string{"pending", "requesting", "streaming", "succeeded", "failed", "cancelled"}[s]
}

type EventKind int

const (
	EventEntrySizing EventKind = iota
	EventEntrySized
	EventSegmentProgress
	EventSegmentSucceeded
	EventSegmentFailed
	EventSegmentRestarted
	EventEntryRestarted
	EventEntrySettled
	EventEntryMerging
	EventEntrySucceeded
	EventEntryFailed
)

// Event is what entries report to the manager. Segment is -1 for entry-level
// events.
type Event struct {
	Kind     EventKind
	Entry    EntryID
	Segment  int
	Value    float64 // segment progress in [0,1]
	Bytes    int64   // bytes received by the segment
	Total    int64
	Segments int
	URL      string
	Name     string
	Path     string
	Err      error
}

type workerEventKind int

const (
	workerProgress workerEventKind = iota
	workerSucceeded
	workerFailed
)

type workerEvent struct {
	kind     workerEventKind
	segment  SegmentID
	attempt  int
	received int64
	value    float64
	path     string
	err      error
}
