package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tanq16/rangeload/internal/downloader"
)

type ErrorReport struct {
	Name    string
	Segment int
	Message string
	Time    time.Time
}

// Display renders the download table on a terminal. It satisfies
// downloader.Presenter: refresh requests only mark the table dirty and the
// ticker redraws at most once per tick.
type Display struct {
	state    *downloader.State
	out      io.Writer
	tick     time.Duration
	height   int // 0 means the terminal height
	dirty    atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	errors   []ErrorReport
	numLines int
}

func NewDisplay(state *downloader.State, out io.Writer) *Display {
	if out == nil {
		out = os.Stdout
	}
	return &Display{
		state: state,
		out:   out,
		tick:  200 * time.Millisecond,
		done:  make(chan struct{}),
	}
}

func (d *Display) RequestRefresh() {
	d.dirty.Store(true)
}

func (d *Display) Notify(n downloader.Notification) {
	if n.Level != downloader.NotifyError {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, ErrorReport{
		Name:    n.Name,
		Segment: n.Segment,
		Message: n.Message,
		Time:    time.Now(),
	})
}

func (d *Display) Errors() []ErrorReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ErrorReport(nil), d.errors...)
}

func (d *Display) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if d.dirty.Swap(false) {
					d.draw()
				}
			case <-d.done:
				d.draw()
				return
			}
		}
	}()
}

// Stop draws the final table followed by the summary.
func (d *Display) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
		d.showSummary()
	})
}

func (d *Display) draw() {
	height := d.height
	if height <= 0 {
		height = getTerminalHeight()
	}
	lines := renderRows(d.state.Snapshot(), time.Now(), height-3)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.numLines > 0 {
		fmt.Fprintf(d.out, "\033[%dA\033[J", d.numLines)
	}
	for _, line := range lines {
		fmt.Fprintln(d.out, line)
	}
	d.numLines = len(lines)
}

// renderRows lays out active rows with their bars first, then finished rows,
// trimming finished rows when the height is exceeded.
func renderRows(rows []downloader.Download, now time.Time, available int) []string {
	if available <= 0 {
		available = 1
	}
	var active, finished []string
	for _, row := range rows {
		if row.Status.Terminal() && row.Status != downloader.StatusPartiallyFailed {
			finished = append(finished, renderFinished(row))
			continue
		}
		active = append(active, renderActive(row, now)...)
	}
	room := available - len(active)
	if room < len(finished) {
		hidden := len(finished) - max(room-1, 0)
		summary := infoStyle.Render(fmt.Sprintf("%s%d finished downloads hidden ...", strings.Repeat(" ", indent), hidden))
		finished = append([]string{summary}, finished[hidden:]...)
		if room <= 0 {
			finished = nil
		}
	}
	lines := append(active, finished...)
	if len(lines) > available {
		lines = lines[:available]
	}
	return lines
}

func renderActive(row downloader.Download, now time.Time) []string {
	elapsed := now.Sub(row.Started).Round(time.Second)
	var message string
	switch row.Status {
	case downloader.StatusPending:
		message = pendingStyle.Render("Waiting " + row.Name)
	case downloader.StatusSizing:
		message = pendingStyle.Render("Probing " + row.Name)
	case downloader.StatusMerging:
		message = pendingStyle.Render("Merging " + row.Name)
	case downloader.StatusPartiallyFailed:
		message = warningStyle.Render(fmt.Sprintf("%s has %d failed segments", row.Name, row.FailedSegments()))
	default:
		message = pendingStyle.Render("Downloading " + row.Name)
	}
	lines := []string{fmt.Sprintf("%s%s %s %s", strings.Repeat(" ", indent), statusIndicator(row.Status), debugStyle.Render(elapsed.String()), message)}
	if row.Total > 0 {
		received := row.Received()
		detail := fmt.Sprintf("%s %s %s / %s %s %s",
			progressBar(received, row.Total, 30),
			StyleSymbols["bullet"],
			FormatBytes(received), FormatBytes(row.Total),
			StyleSymbols["bullet"],
			FormatSpeed(received, elapsed))
		lines = append(lines,
			strings.Repeat(" ", indent+4)+streamStyle.Render(detail),
			strings.Repeat(" ", indent+4)+segmentStrip(row.Segments))
	}
	return lines
}

func renderFinished(row downloader.Download) string {
	took := row.Finished.Sub(row.Started).Round(time.Second)
	var message string
	switch row.Status {
	case downloader.StatusSucceeded:
		message = successStyle.Render(fmt.Sprintf("Completed %s (%s)", row.Name, FormatBytes(row.Total)))
	case downloader.StatusFailed:
		message = errorStyle.Render(fmt.Sprintf("Failed %s: %s", row.Name, row.Error))
	default:
		message = debugStyle.Render(fmt.Sprintf("%s %s", row.Status, row.Name))
	}
	return fmt.Sprintf("%s%s %s %s", strings.Repeat(" ", indent), statusIndicator(row.Status), debugStyle.Render(took.String()), message)
}

func (d *Display) showSummary() {
	lines := summaryLines(d.state.Snapshot(), d.Errors(), getTerminalWidth())
	for _, line := range lines {
		fmt.Fprintln(d.out, line)
	}
}

func summaryLines(rows []downloader.Download, errors []ErrorReport, width int) []string {
	var succeeded, failed int
	for _, row := range rows {
		switch row.Status {
		case downloader.StatusSucceeded:
			succeeded++
		case downloader.StatusFailed, downloader.StatusPartiallyFailed:
			failed++
		}
	}
	pad := strings.Repeat(" ", indent)
	lines := []string{"", pad + success2Style.Render(fmt.Sprintf("Completed %d of %d", succeeded, len(rows)))}
	if failed > 0 {
		lines = append(lines, pad+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failed, len(rows))))
	}
	if len(errors) > 0 {
		lines = append(lines, "", pad+errorStyle.Bold(true).Render("Errors:"))
		for i, report := range errors {
			where := report.Name
			if report.Segment >= 0 {
				where = fmt.Sprintf("%s segment %d", report.Name, report.Segment)
			}
			lines = append(lines, fmt.Sprintf("%s%s %s %s",
				strings.Repeat(" ", indent+2),
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
				errorStyle.Render(where)))
			for _, line := range wrapText(report.Message, width-indent-6) {
				lines = append(lines, strings.Repeat(" ", indent+4)+errorStyle.Render(line))
			}
		}
	}
	return append(lines, "")
}
