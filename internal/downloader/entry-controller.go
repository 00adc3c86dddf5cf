package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/rangeload/internal/source"
	"github.com/tanq16/rangeload/internal/utils"
)

type entryConfig struct {
	outDir       string
	tempDir      string
	parallelism  int
	bufferSize   int
	probeTimeout time.Duration
}

type segment struct {
	id       SegmentID
	rng      Range
	attempt  int
	value    float64
	received int64
	running  bool
	failed   bool
	reason   string
	path     string // temp file of a succeeded segment until it is merged
}

// Entry controls one download. All fields below the channels are owned by
// the run loop goroutine.
type Entry struct {
	id   EntryID
	url  string
	name string
	src  source.Source
	cfg  entryConfig
	sink chan<- Event
	log  zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan workerEvent
	cmds      chan chan error
	done      chan struct{}
	startOnce sync.Once
	workers   sync.WaitGroup
	status    atomic.Int32

	total     int64
	path      string
	segments  []*segment
	running   int
	succeeded int
}

func newEntry(parent context.Context, id EntryID, url, name string, src source.Source, cfg entryConfig, sink chan<- Event) *Entry {
	ctx, cancel := context.WithCancel(parent)
	return &Entry{
		id:     id,
		url:    url,
		name:   name,
		src:    src,
		cfg:    cfg,
		sink:   sink,
		log:    utils.GetLogger("entry").With().Str("entry", id.Short()).Str("name", name).Logger(),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan workerEvent, 64),
		cmds:   make(chan chan error),
		done:   make(chan struct{}),
	}
}

func (e *Entry) ID() EntryID {
	return e.id
}

func (e *Entry) Status() EntryStatus {
	return EntryStatus(e.status.Load())
}

// Done is closed once the entry stopped running.
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

func (e *Entry) Start() {
	e.startOnce.Do(func() {
		go e.run()
	})
}

// Restart re-drives the failed segments. Succeeded segments keep their temp
// files and are not downloaded again.
func (e *Entry) Restart() error {
	switch e.Status() {
	case StatusPending, StatusSizing, StatusMerging, StatusSucceeded, StatusFailed, StatusDeleted:
		return ErrNotRestartable
	}
	reply := make(chan error, 1)
	select {
	case e.cmds <- reply:
		return <-reply
	case <-e.done:
		return ErrNotRestartable
	}
}

// Delete cancels every worker and waits until all temp files of the entry are
// gone. Calling it more than once is harmless.
func (e *Entry) Delete() {
	e.cancel()
	e.startOnce.Do(func() {
		close(e.done)
	})
	<-e.done
	e.setStatus(StatusDeleted)
}

func (e *Entry) setStatus(s EntryStatus) {
	e.status.Store(int32(s))
}

func (e *Entry) run() {
	defer close(e.done)
	defer e.cancel()
	e.setStatus(StatusSizing)
	e.emit(e.entryEvent(EventEntrySizing))
	if err := e.prepare(); err != nil {
		if e.ctx.Err() != nil {
			e.setStatus(StatusDeleted)
			return
		}
		e.fail(err)
		return
	}
	sized := e.entryEvent(EventEntrySized)
	sized.Total = e.total
	sized.Segments = len(e.segments)
	sized.Path = e.path
	e.emit(sized)
	e.setStatus(StatusActive)
	e.log.Debug().Int64("total", e.total).Int("segments", len(e.segments)).Str("path", e.path).Msg("Starting segments")
	for _, seg := range e.segments {
		e.spawn(seg)
	}
	for {
		select {
		case <-e.ctx.Done():
			e.teardown()
			return
		case reply := <-e.cmds:
			reply <- e.restartFailed()
		case ev := <-e.events:
			if e.handle(ev) {
				return
			}
		}
	}
}

// prepare probes the size and plans the segments.
func (e *Entry) prepare() error {
	ctx := e.ctx
	if e.cfg.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(e.ctx, e.cfg.probeTimeout)
		defer cancel()
	}
	total, err := e.src.Probe(ctx)
	if err != nil {
		return fmt.Errorf("error probing size: %w", err)
	}
	ranges, err := PlanRanges(total, e.cfg.parallelism)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.cfg.outDir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	if err := os.MkdirAll(e.cfg.tempDir, 0755); err != nil {
		return fmt.Errorf("error creating temp directory: %w", err)
	}
	e.path = filepath.Join(e.cfg.outDir, e.name)
	if _, err := os.Stat(e.path); err == nil {
		e.path = utils.RenewOutputPath(e.path)
	}
	e.total = total
	e.segments = make([]*segment, len(ranges))
	for i, rng := range ranges {
		e.segments[i] = &segment{id: SegmentID{Entry: e.id, Index: i}, rng: rng}
	}
	return nil
}

func (e *Entry) spawn(seg *segment) {
	name := utils.TempName{
		Base:    filepath.Base(e.path),
		Entry:   e.id.Short(),
		Index:   seg.id.Index,
		Attempt: seg.attempt,
	}
	w := newSegmentWorker(seg.id, seg.rng, seg.attempt, e.src, filepath.Join(e.cfg.tempDir, name.String()), e.cfg.bufferSize, e.events)
	seg.running = true
	e.running++
	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		w.run(e.ctx)
	}()
}

// handle applies one worker event and reports whether the entry finished.
func (e *Entry) handle(ev workerEvent) bool {
	if ev.segment.Index < 0 || ev.segment.Index >= len(e.segments) {
		return false
	}
	seg := e.segments[ev.segment.Index]
	if ev.attempt != seg.attempt || !seg.running {
		return false
	}
	switch ev.kind {
	case workerProgress:
		seg.value, seg.received = ev.value, ev.received
		out := e.segmentEvent(EventSegmentProgress, seg)
		e.emit(out)
	case workerSucceeded:
		seg.running = false
		seg.path = ev.path
		seg.value, seg.received = 1, ev.received
		e.running--
		e.succeeded++
		out := e.segmentEvent(EventSegmentSucceeded, seg)
		out.Path = ev.path
		e.emit(out)
		if e.succeeded == len(e.segments) {
			e.finish()
			return true
		}
		e.settleIfIdle()
	case workerFailed:
		seg.running = false
		seg.failed = true
		seg.reason = ev.err.Error()
		e.running--
		e.log.Debug().Int("segment", seg.id.Index).Err(ev.err).Msg("Segment failed")
		out := e.segmentEvent(EventSegmentFailed, seg)
		out.Err = ev.err
		e.emit(out)
		e.settleIfIdle()
	}
	return false
}

// settleIfIdle marks the entry partially failed once no worker is left and
// some segment did not succeed.
func (e *Entry) settleIfIdle() {
	if e.running != 0 || e.succeeded == len(e.segments) {
		return
	}
	e.setStatus(StatusPartiallyFailed)
	e.emit(e.entryEvent(EventEntrySettled))
}

func (e *Entry) restartFailed() error {
	if s := e.Status(); s != StatusActive && s != StatusPartiallyFailed {
		return ErrNotRestartable
	}
	restarted := 0
	for _, seg := range e.segments {
		if !seg.failed {
			continue
		}
		seg.failed = false
		seg.reason = ""
		seg.value, seg.received = 0, 0
		seg.attempt++
		e.emit(e.segmentEvent(EventSegmentRestarted, seg))
		e.spawn(seg)
		restarted++
	}
	if restarted == 0 {
		return nil
	}
	e.setStatus(StatusActive)
	ev := e.entryEvent(EventEntryRestarted)
	ev.Segments = restarted
	e.emit(ev)
	e.log.Debug().Int("segments", restarted).Msg("Restarted failed segments")
	return nil
}

func (e *Entry) finish() {
	err := e.merge()
	switch {
	case err == nil:
		e.setStatus(StatusSucceeded)
		ev := e.entryEvent(EventEntrySucceeded)
		ev.Path = e.path
		ev.Total = e.total
		e.emit(ev)
		e.log.Debug().Str("path", e.path).Msg("Download completed")
	case e.ctx.Err() != nil:
		e.teardown()
	default:
		e.removeTempFiles()
		e.fail(err)
	}
}

// teardown runs after cancellation. Workers are gone afterwards, so any
// success still buffered is the last reference to its temp file.
func (e *Entry) teardown() {
	e.workers.Wait()
	for drained := false; !drained; {
		select {
		case ev := <-e.events:
			if ev.kind == workerSucceeded && ev.path != "" {
				os.Remove(ev.path)
			}
		default:
			drained = true
		}
	}
	e.removeTempFiles()
	e.setStatus(StatusDeleted)
	e.log.Debug().Msg("Entry deleted")
}

func (e *Entry) removeTempFiles() {
	for _, seg := range e.segments {
		if seg.path == "" {
			continue
		}
		if err := os.Remove(seg.path); err != nil && !os.IsNotExist(err) {
			e.log.Warn().Err(err).Str("file", seg.path).Msg("Error removing temp file")
		}
		seg.path = ""
	}
}

func (e *Entry) fail(err error) {
	e.setStatus(StatusFailed)
	e.log.Debug().Err(err).Msg("Download failed")
	ev := e.entryEvent(EventEntryFailed)
	ev.Err = err
	e.emit(ev)
}

func (e *Entry) entryEvent(kind EventKind) Event {
	return Event{Kind: kind, Entry: e.id, Segment: -1, URL: e.url, Name: e.name}
}

func (e *Entry) segmentEvent(kind EventKind, seg *segment) Event {
	return Event{Kind: kind, Entry: e.id, Segment: seg.id.Index, Value: seg.value, Bytes: seg.received}
}

func (e *Entry) emit(ev Event) {
	select {
	case e.sink <- ev:
	case <-e.ctx.Done():
	}
}
