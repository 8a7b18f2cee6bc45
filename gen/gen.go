// Package gen writes synthetic source files of random records for
// exercising the sorter.
package gen

import (
	"bufio"
	"context"
	"io"
	"math/rand"
	"runtime"
	"sync"

	"github.com/brimdata/extsort/pkg/fs"
	"github.com/brimdata/extsort/record"
	"github.com/brimdata/extsort/sorterr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Words are the record texts the generator draws from.
var Words = []string{
	"apple", "banana", "cherry", "dog", "elephant",
	"fox", "grape", "hat", "ice cream", "jelly",
	"kiwi", "lemon", "monkey", "nut", "orange",
	"pear", "quilt", "rabbit", "snake", "tiger",
}

// batchSize is the number of bytes a worker formats between acquisitions of
// the output lock.
const batchSize = 64 * 1024

type Options struct {
	// Size is the minimum number of bytes to write.  Output stops at the
	// first line boundary at or beyond Size.
	Size    int64
	Workers int
	Seed    int64
	Codec   record.Codec
	// Progress, if not nil, is called with the number of bytes written
	// after each batch.
	Progress func(int64)
}

type writer struct {
	mu       sync.Mutex
	w        io.Writer
	size     int64
	written  int64
	progress func(int64)
}

// write copies lines from batch until the size limit is reached and
// reports whether the limit is still ahead.
func (w *writer) write(batch []byte, codec record.Codec) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.written >= w.size {
		return false, nil
	}
	n := len(batch)
	if remaining := w.size - w.written; int64(n) > remaining {
		// Cut at the first line ending at or past the limit.
		n = int(remaining)
		codec.Lines(batch, func(_ []byte, end int) bool {
			if end >= int(remaining) {
				n = end
				return false
			}
			return true
		})
	}
	if _, err := w.w.Write(batch[:n]); err != nil {
		return false, err
	}
	w.written += int64(n)
	if w.progress != nil {
		w.progress(w.written)
	}
	return w.written < w.size, nil
}

// Generate writes random records to w until at least opts.Size bytes have
// been written and returns the number of bytes written.  Keys span the
// whole int64 range.  With one worker the output is determined by
// opts.Seed.
func Generate(ctx context.Context, w io.Writer, opts Options) (int64, error) {
	if opts.Size < 0 {
		return 0, sorterr.E(sorterr.Invalid, "size must not be negative")
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Codec.Terminator == nil {
		opts.Codec = record.CRLF
	}
	out := &writer{w: w, size: opts.Size, progress: opts.Progress}
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Workers; i++ {
		rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
		group.Go(func() error {
			var batch []byte
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				batch = batch[:0]
				for len(batch) < batchSize {
					word := Words[rng.Intn(len(Words))]
					batch = opts.Codec.Append(batch, int64(rng.Uint64()), []byte(word))
				}
				more, err := out.write(batch, opts.Codec)
				if err != nil || !more {
					return err
				}
			}
		})
	}
	err := group.Wait()
	return out.written, err
}

// GenerateFile is like Generate but creates or truncates the file at path.
func GenerateFile(ctx context.Context, path string, opts Options) (int64, error) {
	f, err := fs.Create(path)
	if err != nil {
		return 0, sorterr.E(sorterr.IO, err)
	}
	bw := bufio.NewWriterSize(f, 1<<20)
	n, err := Generate(ctx, bw, opts)
	if err == nil {
		err = bw.Flush()
	}
	return n, multierr.Append(err, f.Close())
}
