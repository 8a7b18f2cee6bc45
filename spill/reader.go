package spill

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"unsafe"

	"github.com/brimdata/extsort/pkg/bufpool"
	"github.com/brimdata/extsort/pkg/fs"
	"github.com/brimdata/extsort/pkg/ring"
	"github.com/brimdata/extsort/pkg/workers"
	"github.com/brimdata/extsort/record"
	"github.com/brimdata/extsort/sorterr"
	"github.com/prometheus/client_golang/prometheus"
)

// recordSlotSize approximates the memory one queued record occupies apart
// from its text.
const recordSlotSize = int(unsafe.Sizeof(record.Record{}))

// DefaultQueueCap is the queue capacity used when the budget is too small
// to derive one.
const DefaultQueueCap = 1024

type ReaderOptions struct {
	Codec record.Codec
	// Budget is the number of bytes read from the run per refill.
	Budget  int
	Pool    *bufpool.Pool
	Workers *workers.Pool
	// Refills, if not nil, counts refill calls.
	Refills prometheus.Counter
}

// Reader streams the records of one run, the byte range [start, end) of an
// intermediate file, through a ring.Queue that it refills in the
// background.
type Reader struct {
	file    *os.File
	section *io.SectionReader
	start   int64
	end     int64
	pos     int64
	opts    ReaderOptions
	queue   *ring.Queue[record.Record]
	once    sync.Once
	err     error
}

// NewReader opens path for the run [start, end) and begins loading its
// first records.  All reads are confined to that range.
func NewReader(ctx context.Context, path string, start, end int64, opts ReaderOptions) (*Reader, error) {
	if start > end {
		return nil, sorterr.E(sorterr.Invalid, "run range [%d, %d) is inverted", start, end)
	}
	if opts.Budget <= 0 {
		return nil, sorterr.E(sorterr.Invalid, "run buffer budget must be positive")
	}
	if opts.Codec.Terminator == nil {
		opts.Codec = record.CRLF
	}
	if opts.Pool == nil {
		opts.Pool = bufpool.New(opts.Budget, opts.Budget)
	}
	if opts.Workers == nil {
		opts.Workers = workers.New(0)
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, sorterr.E(sorterr.IO, err)
	}
	r := &Reader{
		file:    f,
		section: io.NewSectionReader(f, start, end-start),
		start:   start,
		end:     end,
		pos:     start,
		opts:    opts,
	}
	capacity := opts.Budget / recordSlotSize
	if capacity <= 0 {
		capacity = DefaultQueueCap
	}
	r.queue = ring.New(ctx, capacity, opts.Workers, r.update)
	return r, nil
}

// Range returns the byte range of the run.
func (r *Reader) Range() (int64, int64) {
	return r.start, r.end
}

func (r *Reader) Peek(ctx context.Context) (record.Record, bool, error) {
	return r.queue.TryPeek(ctx)
}

func (r *Reader) Dequeue(ctx context.Context) (record.Record, bool, error) {
	return r.queue.TryDequeue(ctx)
}

// Close stops any refill in flight and releases the file handle.  It may be
// called more than once.
func (r *Reader) Close() error {
	r.once.Do(func() {
		r.queue.Close()
		r.err = r.file.Close()
	})
	return r.err
}

// update is the queue's refill.  It decodes records from the run into q
// starting at r.pos until it has enqueued some, the queue fills, or the run
// is drained.  r.pos advances only past lines that were skipped or
// enqueued, so a record rejected by a full queue is read again next time.
func (r *Reader) update(ctx context.Context, q *ring.Queue[record.Record]) (bool, error) {
	if r.opts.Refills != nil {
		r.opts.Refills.Inc()
	}
	var enqueued int
	for r.pos < r.end {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		consumed, n, full, err := r.slice(q)
		if err != nil {
			return false, err
		}
		r.pos += consumed
		enqueued += n
		if full {
			return true, nil
		}
		if enqueued > 0 {
			break
		}
	}
	return enqueued > 0, nil
}

// slice reads the next budget-sized slice of the run and enqueues the
// records of its complete lines.  A slice with no complete line is doubled
// until one fits or the run's remaining bytes are exhausted.
func (r *Reader) slice(q *ring.Queue[record.Record]) (int64, int, bool, error) {
	codec := r.opts.Codec
	remaining := r.end - r.pos
	n := int64(r.opts.Budget)
	if n > remaining {
		n = remaining
	}
	for {
		var consumed int64
		var enqueued int
		var full, found bool
		err := r.opts.Pool.With(int(n), func(buf []byte) error {
			cc, err := r.section.ReadAt(buf, r.pos-r.start)
			if err != nil && !(err == io.EOF && cc == len(buf)) {
				return sorterr.E(sorterr.IO, "run [%d, %d) offset %d: %w", r.start, r.end, r.pos, err)
			}
			end := codec.LastTerminator(buf)
			if end < 0 {
				if n < remaining {
					return nil
				}
				if len(bytes.TrimSpace(buf)) != 0 {
					return sorterr.E(sorterr.Stall, "run [%d, %d) offset %d: %d trailing bytes hold no complete line", r.start, r.end, r.pos, len(buf))
				}
				found, consumed = true, n
				return nil
			}
			found = true
			var decodeErr error
			codec.Lines(buf[:end], func(line []byte, lineEnd int) bool {
				rec, ok, err := codec.Decode(line)
				if err != nil {
					decodeErr = fmt.Errorf("run [%d, %d) offset %d: %w", r.start, r.end, r.pos+consumed, err)
					return false
				}
				if ok {
					if !q.TryEnqueue(rec) {
						full = true
						return false
					}
					enqueued++
				}
				consumed = int64(lineEnd)
				return true
			})
			return decodeErr
		})
		if err != nil || found {
			return consumed, enqueued, full, err
		}
		n *= 2
		if n > remaining {
			n = remaining
		}
	}
}
