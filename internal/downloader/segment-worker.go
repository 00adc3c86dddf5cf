package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/tanq16/rangeload/internal/source"
	"github.com/tanq16/rangeload/internal/utils"
)

type segmentWorker struct {
	id         SegmentID
	rng        Range
	attempt    int
	src        source.Source
	tempPath   string
	bufferSize int
	events     chan<- workerEvent
	state      segmentState
	log        zerolog.Logger
}

func newSegmentWorker(id SegmentID, rng Range, attempt int, src source.Source, tempPath string, bufferSize int, events chan<- workerEvent) *segmentWorker {
	if bufferSize <= 0 {
		bufferSize = utils.DefaultBufferSize
	}
	return &segmentWorker{
		id:         id,
		rng:        rng,
		attempt:    attempt,
		src:        src,
		tempPath:   tempPath,
		bufferSize: bufferSize,
		events:     events,
		log: utils.GetLogger("segment").With().
			Str("entry", id.Entry.Short()).Int("segment", id.Index).Int("attempt", attempt).Logger(),
	}
}

// run downloads the range into the temp file. It emits at most one terminal
// event and never leaves a temp file behind unless the success event was
// delivered.
func (w *segmentWorker) run(ctx context.Context) {
	file, err := os.OpenFile(w.tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		w.state = segmentFailed
		w.send(ctx, workerEvent{kind: workerFailed, err: fmt.Errorf("error creating temp file: %w", err)})
		return
	}
	received, err := w.stream(ctx, file)
	if ctx.Err() != nil {
		file.Close()
		os.Remove(w.tempPath)
		w.log.Debug().Str("phase", w.state.String()).Int64("received", received).Msg("Segment cancelled")
		w.state = segmentCancelled
		return
	}
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("error closing temp file: %w", closeErr)
	}
	if err != nil {
		os.Remove(w.tempPath)
		w.state = segmentFailed
		w.log.Debug().Err(err).Int64("received", received).Msg("Segment failed")
		w.send(ctx, workerEvent{kind: workerFailed, received: received, err: err})
		return
	}
	w.state = segmentSucceeded
	w.log.Debug().Int64("size", received).Str("file", w.tempPath).Msg("Segment completed")
	if !w.send(ctx, workerEvent{kind: workerSucceeded, received: received, value: 1, path: w.tempPath}) {
		os.Remove(w.tempPath)
	}
}

func (w *segmentWorker) stream(ctx context.Context, file *os.File) (int64, error) {
	w.state = segmentRequesting
	w.log.Debug().Str("range", w.rng.String()).Msg("Requesting range")
	body, err := w.src.OpenRange(ctx, w.rng.Start, w.rng.End)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	w.state = segmentStreaming
	expected := w.rng.Len()
	buffer := make([]byte, w.bufferSize)
	var received int64
	for {
		if err := ctx.Err(); err != nil {
			return received, err
		}
		n, readErr := body.Read(buffer)
		if n > 0 {
			if received+int64(n) > expected {
				return received, fmt.Errorf("%w: received more than %d bytes", ErrSizeMismatch, expected)
			}
			if _, err := file.Write(buffer[:n]); err != nil {
				return received, fmt.Errorf("error writing temp file: %w", err)
			}
			received += int64(n)
			w.send(ctx, workerEvent{kind: workerProgress, received: received, value: fraction(received, expected)})
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return received, fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	if received != expected {
		return received, fmt.Errorf("%w: expected %d bytes, got %d", ErrSizeMismatch, expected, received)
	}
	return received, nil
}

func (w *segmentWorker) send(ctx context.Context, ev workerEvent) bool {
	ev.segment = w.id
	ev.attempt = w.attempt
	select {
	case w.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func fraction(received, expected int64) float64 {
	if expected <= 0 {
		return 1
	}
	v := float64(received) / float64(expected)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
