package downloader

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/rangeload/internal/source"
	"github.com/tanq16/rangeload/internal/utils"
)

type Options struct {
	OutputDir    string
	TempDir      string // defaults to OutputDir/.rangeload-temp
	Connections  int    // segments per entry, defaults to runtime.NumCPU()
	BufferSize   int
	ProbeTimeout time.Duration
}

// Resolver turns a URL into a Source.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (source.Source, error)
}

type NotificationLevel int

const (
	NotifyInfo NotificationLevel = iota
	NotifyError
)

type Notification struct {
	Level   NotificationLevel
	Entry   EntryID
	Name    string
	Segment int // -1 for the whole entry
	Message string
}

// Presenter is the presentation layer as seen by the manager.
type Presenter interface {
	RequestRefresh()
	Notify(n Notification)
}

type nopPresenter struct{}

func (nopPresenter) RequestRefresh()     {}
func (nopPresenter) Notify(Notification) {}

type Manager struct {
	opts      Options
	resolver  Resolver
	state     *State
	presenter Presenter
	events    chan Event
	log       zerolog.Logger

	mu      sync.Mutex
	entries map[EntryID]*Entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(opts Options, resolver Resolver, state *State, presenter Presenter) *Manager {
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.TempDir == "" {
		opts.TempDir = filepath.Join(opts.OutputDir, utils.TempDirName)
	}
	if opts.Connections <= 0 {
		opts.Connections = runtime.NumCPU()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = utils.DefaultBufferSize
	}
	if state == nil {
		state = NewState()
	}
	if presenter == nil {
		presenter = nopPresenter{}
	}
	return &Manager{
		opts:      opts,
		resolver:  resolver,
		state:     state,
		presenter: presenter,
		events:    make(chan Event, 256),
		log:       utils.GetLogger("manager"),
		entries:   make(map[EntryID]*Entry),
	}
}

func (m *Manager) State() *State {
	return m.state
}

func (m *Manager) Options() Options {
	return m.opts
}

// Start launches the aggregation task. Entries live until Delete, Shutdown or
// the cancellation of ctx.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.aggregate()
	}()
}

// Shutdown deletes every entry and stops the aggregation task.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make([]*Entry, 0, len(m.entries))
	for id, entry := range m.entries {
		entries = append(entries, entry)
		delete(m.entries, id)
	}
	cancel := m.cancel
	m.mu.Unlock()
	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry.Delete()
		}()
	}
	wg.Wait()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.log.Debug().Int("entries", len(entries)).Msg("Manager stopped")
}

func (m *Manager) Enqueue(rawURL, name string) (EntryID, error) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return "", ErrManagerClosed
	}
	src, err := m.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = utils.InferFileName(rawURL)
	}
	name = filepath.Base(name)
	id := NewEntryID()
	cfg := entryConfig{
		outDir:       m.opts.OutputDir,
		tempDir:      m.opts.TempDir,
		parallelism:  m.opts.Connections,
		bufferSize:   m.opts.BufferSize,
		probeTimeout: m.opts.ProbeTimeout,
	}
	entry := newEntry(ctx, id, rawURL, name, src, cfg, m.events)
	// The row exists before the id is handed out, so callers can wait on it.
	m.state.add(Download{
		ID:      id,
		URL:     rawURL,
		Name:    name,
		Status:  StatusPending,
		Started: time.Now(),
	})
	m.mu.Lock()
	m.entries[id] = entry
	m.mu.Unlock()
	m.presenter.RequestRefresh()
	entry.Start()
	m.log.Debug().Str("entry", id.Short()).Str("url", rawURL).Str("name", name).Msg("Entry enqueued")
	return id, nil
}

func (m *Manager) Restart(id EntryID) error {
	entry := m.lookup(id)
	if entry == nil {
		m.log.Warn().Str("op", "restart").Str("entry", string(id)).Msg("Unknown entry")
		return ErrUnknownEntry
	}
	return entry.Restart()
}

func (m *Manager) Delete(id EntryID) error {
	m.mu.Lock()
	entry := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()
	if entry == nil {
		m.log.Warn().Str("op", "delete").Str("entry", string(id)).Msg("Unknown entry")
		return ErrUnknownEntry
	}
	entry.Delete()
	m.state.remove(id)
	m.presenter.RequestRefresh()
	return nil
}

func (m *Manager) lookup(id EntryID) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id]
}

func (m *Manager) aggregate() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.events:
			m.apply(ev)
			m.presenter.RequestRefresh()
		}
	}
}

// apply translates one entry event into the State table.
func (m *Manager) apply(ev Event) {
	switch ev.Kind {
	case EventEntrySizing:
		m.setStatus(ev.Entry, StatusSizing)
	case EventEntrySized:
		m.state.update(ev.Entry, func(d *Download) {
			d.Total = ev.Total
			d.Path = ev.Path
			d.Segments = make([]Progress, ev.Segments)
			d.Status = StatusActive
		})
	case EventSegmentProgress, EventSegmentSucceeded:
		m.updateSegment(ev.Entry, ev.Segment, func(p *Progress) {
			p.Value = ev.Value
			p.Bytes = ev.Bytes
		})
	case EventSegmentFailed:
		m.updateSegment(ev.Entry, ev.Segment, func(p *Progress) {
			p.Failed = true
			p.Reason = ev.Err.Error()
		})
		m.notify(ev, NotifyError, "segment failed: "+ev.Err.Error())
	case EventSegmentRestarted:
		m.updateSegment(ev.Entry, ev.Segment, func(p *Progress) {
			*p = Progress{}
		})
	case EventEntryRestarted:
		m.state.update(ev.Entry, func(d *Download) {
			d.Restarts++
			d.Status = StatusActive
		})
	case EventEntrySettled:
		m.setStatus(ev.Entry, StatusPartiallyFailed)
	case EventEntryMerging:
		m.state.update(ev.Entry, func(d *Download) {
			d.Status = StatusMerging
			d.Path = ev.Path
		})
	case EventEntrySucceeded:
		// Notifications go out before the row turns terminal so that a
		// waiter on the row sees them.
		m.notify(ev, NotifyInfo, "download completed")
		m.state.update(ev.Entry, func(d *Download) {
			d.Status = StatusSucceeded
			d.Ready = true
			d.Path = ev.Path
			d.Finished = time.Now()
		})
	case EventEntryFailed:
		m.notify(ev, NotifyError, ev.Err.Error())
		m.state.update(ev.Entry, func(d *Download) {
			d.Status = StatusFailed
			d.Error = ev.Err.Error()
			d.Finished = time.Now()
		})
	}
}

func (m *Manager) setStatus(id EntryID, status EntryStatus) {
	m.state.update(id, func(d *Download) {
		d.Status = status
	})
}

func (m *Manager) updateSegment(id EntryID, index int, fn func(p *Progress)) {
	m.state.update(id, func(d *Download) {
		if index >= 0 && index < len(d.Segments) {
			fn(&d.Segments[index])
		}
	})
}

func (m *Manager) notify(ev Event, level NotificationLevel, message string) {
	name := ev.Name
	if row, ok := m.state.Get(ev.Entry); ok {
		name = row.Name
	}
	m.presenter.Notify(Notification{
		Level:   level,
		Entry:   ev.Entry,
		Name:    name,
		Segment: ev.Segment,
		Message: message,
	})
}
