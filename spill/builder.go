package spill

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/axiomhq/hyperloglog"
	"github.com/brimdata/extsort/pkg/bufpool"
	"github.com/brimdata/extsort/pkg/fs"
	"github.com/brimdata/extsort/pkg/peeker"
	"github.com/brimdata/extsort/record"
	"github.com/brimdata/extsort/sorterr"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxLine bounds how far a window may grow to hold a single line.
const DefaultMaxLine = 64 * 1024 * 1024

// parallelSortMin is the window size, in records, below which a window is
// sorted on one goroutine.
const parallelSortMin = 1 << 14

type BuildOptions struct {
	Codec record.Codec
	// Window is the number of source bytes sorted in memory per run.
	Window int
	// MaxLine is the largest a window may grow to when it holds no
	// complete line.  Zero means the larger of Window and DefaultMaxLine.
	MaxLine int
	// Workers is the number of goroutines used to sort one window.
	Workers int
	Pool    *bufpool.Pool
	// Progress, if not nil, is called after each window with the number
	// of source bytes consumed so far.
	Progress func(int64)
}

type BuildStats struct {
	Runs         int
	Records      int64
	Skipped      int64
	BytesRead    int64
	DistinctKeys uint64
}

// entry is a record in the current window: its key and the location of its
// text within the window buffer.
type entry struct {
	key int64
	off int
	n   int
}

type builder struct {
	logger  *zap.Logger
	opts    BuildOptions
	out     *File
	entries []entry
	scratch []entry
	line    []byte
	keys    *hyperloglog.Sketch
	stats   BuildStats
}

// Build reads src in windows of opts.Window bytes, sorts the records of each
// window by key and appends each sorted window to a new file at dst as one
// run.  It returns the run boundaries of dst, which start with 0 and end at
// the length of dst.  An empty source yields no runs.  The caller owns dst
// and must remove it.
func Build(ctx context.Context, logger *zap.Logger, src, dst string, opts BuildOptions) (Boundaries, *BuildStats, error) {
	if opts.Window <= 0 {
		return nil, nil, sorterr.E(sorterr.Invalid, "window size must be positive")
	}
	if opts.MaxLine < opts.Window {
		opts.MaxLine = DefaultMaxLine
		if opts.MaxLine < opts.Window {
			opts.MaxLine = opts.Window
		}
	}
	if opts.Codec.Terminator == nil {
		opts.Codec = record.CRLF
	}
	if opts.Pool == nil {
		opts.Pool = bufpool.New(opts.Window, opts.Window)
	}
	in, err := fs.Open(src)
	if err != nil {
		return nil, nil, sorterr.E(sorterr.IO, err)
	}
	defer in.Close()
	out, err := CreateFile(dst)
	if err != nil {
		return nil, nil, sorterr.E(sorterr.IO, err)
	}
	b := &builder{
		logger: logger,
		opts:   opts,
		out:    out,
		keys:   hyperloglog.New(),
	}
	bounds, err := b.build(ctx, in)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = sorterr.E(sorterr.IO, closeErr)
	}
	if err != nil {
		return nil, nil, err
	}
	b.stats.DistinctKeys = b.keys.Estimate()
	logger.Info("runs created",
		zap.Int("runs", b.stats.Runs),
		zap.Int64("records", b.stats.Records),
		zap.Int64("skipped", b.stats.Skipped),
		zap.Int64("bytes", b.stats.BytesRead),
		zap.Uint64("distinct_keys", b.stats.DistinctKeys))
	return bounds, &b.stats, nil
}

func (b *builder) build(ctx context.Context, in io.Reader) (Boundaries, error) {
	buf := b.opts.Pool.Get(b.opts.Window)
	defer b.opts.Pool.Put(buf)
	pk := peeker.NewReaderWithBuffer(in, *buf, b.opts.MaxLine)
	bounds := Boundaries{0}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offset := pk.Consumed()
		window, eof, err := b.nextWindow(pk)
		if err == io.EOF {
			return bounds, nil
		}
		if err != nil {
			return nil, err
		}
		consumed, err := b.decode(window, eof, offset)
		if err != nil {
			return nil, err
		}
		if len(b.entries) > 0 {
			if err := b.sort(ctx); err != nil {
				return nil, err
			}
			size, err := b.write(window)
			if err != nil {
				return nil, sorterr.E(sorterr.IO, err)
			}
			bounds = append(bounds, size)
			b.stats.Runs++
			b.logger.Debug("run written",
				zap.Int("run", b.stats.Runs-1),
				zap.Int64("source_offset", offset),
				zap.Int("records", len(b.entries)),
				zap.Int64("end", size))
		}
		if _, err := pk.Read(consumed); err != nil {
			return nil, sorterr.E(sorterr.IO, err)
		}
		b.stats.BytesRead = pk.Consumed()
		if b.opts.Progress != nil {
			b.opts.Progress(b.stats.BytesRead)
		}
	}
}

// nextWindow peeks the next window.  A window with no complete line is
// doubled until one fits, up to opts.MaxLine.  eof is true when the window
// reaches the end of the source.
func (b *builder) nextWindow(pk *peeker.Reader) ([]byte, bool, error) {
	n := b.opts.Window
	for {
		window, err := pk.Peek(n)
		switch {
		case err == nil:
		case err == peeker.ErrTruncated:
			return window, true, nil
		case err == io.EOF:
			return nil, false, io.EOF
		case errors.Is(err, peeker.ErrBufferOverflow):
			return nil, false, sorterr.E(sorterr.LineTooLong, "source offset %d: no line terminator within %d bytes", pk.Consumed(), pk.Limit())
		default:
			return nil, false, sorterr.E(sorterr.IO, err)
		}
		if b.opts.Codec.LastTerminator(window) >= 0 {
			return window, false, nil
		}
		if n == pk.Limit() {
			return nil, false, sorterr.E(sorterr.LineTooLong, "source offset %d: no line terminator within %d bytes", pk.Consumed(), n)
		}
		n *= 2
		if n > pk.Limit() {
			n = pk.Limit()
		}
	}
}

// decode fills b.entries with the records of window and returns the number
// of bytes they span.  Bytes after the last terminator are left for the
// next window unless eof is set, in which case they are the final line.
func (b *builder) decode(window []byte, eof bool, offset int64) (int, error) {
	codec := b.opts.Codec
	b.entries = b.entries[:0]
	end := codec.LastTerminator(window)
	if end < 0 {
		end = 0
	}
	var err error
	codec.Lines(window[:end], func(line []byte, lineEnd int) bool {
		start := lineEnd - len(line) - len(codec.Terminator)
		err = b.add(window, line, start, offset)
		return err == nil
	})
	if err != nil {
		return 0, err
	}
	if !eof {
		return end, nil
	}
	if tail := bytes.TrimRight(window[end:], string(codec.Terminator)); len(tail) > 0 {
		if err := b.add(window, tail, end, offset); err != nil {
			return 0, err
		}
	}
	return len(window), nil
}

func (b *builder) add(window, line []byte, start int, offset int64) error {
	key, text, ok, err := b.opts.Codec.DecodeKey(line)
	if err != nil {
		return fmt.Errorf("source offset %d: %w", offset+int64(start), err)
	}
	if !ok {
		b.stats.Skipped++
		return nil
	}
	b.entries = append(b.entries, entry{
		key: key,
		off: start + len(line) - len(text),
		n:   len(text),
	})
	var kb [8]byte
	binary.BigEndian.PutUint64(kb[:], uint64(key))
	b.keys.Insert(kb[:])
	b.stats.Records++
	return nil
}

func lessEntry(a, b entry) bool {
	return a.key < b.key
}

// sort orders b.entries by key.  Large windows are split into segments that
// are sorted concurrently and then merged.  Equal keys end up in no
// particular order.
func (b *builder) sort(ctx context.Context) error {
	workers := b.opts.Workers
	if workers <= 1 || len(b.entries) < parallelSortMin {
		slices.SortFunc(b.entries, lessEntry)
		return nil
	}
	segs := segments(len(b.entries), workers)
	g, _ := errgroup.WithContext(ctx)
	for _, seg := range segs {
		part := b.entries[seg[0]:seg[1]]
		g.Go(func() error {
			slices.SortFunc(part, lessEntry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	b.scratch = mergeSegments(b.scratch[:0], b.entries, segs)
	b.entries, b.scratch = b.scratch, b.entries
	return nil
}

// segments splits [0, n) into k nearly equal half-open ranges.
func segments(n, k int) [][2]int {
	if k > n {
		k = n
	}
	segs := make([][2]int, 0, k)
	for i := 0; i < k; i++ {
		segs = append(segs, [2]int{i * n / k, (i + 1) * n / k})
	}
	return segs
}

// mergeSegments appends to dst the k-way merge of the sorted segments of
// src.
func mergeSegments(dst, src []entry, segs [][2]int) []entry {
	heads := make([]int, len(segs))
	for i, seg := range segs {
		heads[i] = seg[0]
	}
	for {
		min := -1
		for i, h := range heads {
			if h == segs[i][1] {
				continue
			}
			if min < 0 || src[h].key < src[heads[min]].key {
				min = i
			}
		}
		if min < 0 {
			return dst
		}
		dst = append(dst, src[heads[min]])
		heads[min]++
	}
}

// write appends the sorted window to the run file and returns the file's
// length afterward.
func (b *builder) write(window []byte) (int64, error) {
	codec := b.opts.Codec
	for _, e := range b.entries {
		b.line = codec.Append(b.line[:0], e.key, window[e.off:e.off+e.n])
		if _, err := b.out.Write(b.line); err != nil {
			return 0, err
		}
	}
	return b.out.Flush()
}
