package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/tanq16/rangeload/internal/utils"
)

type mergePart struct {
	index int
	path  string
	size  int64
}

// merge concatenates the segment files into the destination in index order.
// Each temp file is removed right after it was copied. A failed merge leaves
// the partial destination in place unless the entry was deleted.
func (e *Entry) merge() error {
	e.setStatus(StatusMerging)
	parts := make([]mergePart, 0, len(e.segments))
	for _, seg := range e.segments {
		parts = append(parts, mergePart{index: seg.id.Index, path: seg.path, size: seg.rng.Len()})
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].index < parts[j].index
	})
	dest, err := e.createDestination()
	if err != nil {
		return err
	}
	ev := e.entryEvent(EventEntryMerging)
	ev.Path = e.path
	e.emit(ev)
	e.log.Debug().Int("count", len(parts)).Str("path", e.path).Msg("Assembling segments in order")

	var written int64
	for _, part := range parts {
		n, err := appendPart(e.ctx, dest, part)
		written += n
		if err != nil {
			dest.Close()
			if e.ctx.Err() != nil {
				os.Remove(e.path)
			}
			return err
		}
		if err := os.Remove(part.path); err != nil {
			e.log.Warn().Err(err).Str("file", part.path).Msg("Error removing merged temp file")
		}
		e.segments[part.index].path = ""
	}
	if written != e.total {
		dest.Close()
		return fmt.Errorf("%w: merged %d bytes, expected %d", ErrSizeMismatch, written, e.total)
	}
	if err := dest.Sync(); err != nil {
		dest.Close()
		return fmt.Errorf("error syncing output file: %w", err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("error closing output file: %w", err)
	}
	return nil
}

// createDestination never overwrites: a name taken since sizing moves the
// output to the next free name.
func (e *Entry) createDestination() (*os.File, error) {
	for range 3 {
		file, err := os.OpenFile(e.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("error creating output file: %w", err)
		}
		e.path = utils.RenewOutputPath(e.path)
	}
	return nil, fmt.Errorf("error creating output file: no free name for %s", e.name)
}

func appendPart(ctx context.Context, dest io.Writer, part mergePart) (int64, error) {
	file, err := os.Open(part.path)
	if err != nil {
		return 0, fmt.Errorf("error opening segment file %d: %w", part.index, err)
	}
	defer file.Close()
	n, err := io.Copy(dest, &ctxReader{ctx: ctx, r: file})
	if err != nil {
		return n, fmt.Errorf("error copying segment %d: %w", part.index, err)
	}
	if n != part.size {
		return n, fmt.Errorf("%w: segment %d has %d bytes, expected %d", ErrSizeMismatch, part.index, n, part.size)
	}
	return n, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
