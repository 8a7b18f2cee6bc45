//go:generate mockgen -destination=./mock/mock_source.go -package=mock github.com/brimdata/extsort/merge Source

// Package merge combines sorted runs into a single sorted stream.
package merge

import (
	"bufio"
	"container/heap"
	"context"
	"io"

	"github.com/brimdata/extsort/record"
	"github.com/brimdata/extsort/sorterr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Source is a sorted sequence of records.  Peek and Dequeue return false
// with a nil error once the source is exhausted.
type Source interface {
	Peek(context.Context) (record.Record, bool, error)
	Dequeue(context.Context) (record.Record, bool, error)
	Close() error
}

type Strategy int

const (
	// Linear scans every live source for each output record.
	Linear Strategy = iota
	// Heap keeps the live sources in a min-heap ordered by key and then by
	// source position.
	Heap
)

func (s Strategy) String() string {
	switch s {
	case Linear:
		return "linear"
	case Heap:
		return "heap"
	}
	return "unknown"
}

// ParseStrategy returns the Strategy named by s.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "linear", "":
		return Linear, nil
	case "heap":
		return Heap, nil
	}
	return 0, sorterr.E(sorterr.Invalid, "unknown merge strategy %q (values: linear, heap)", s)
}

// progressInterval is the number of records written between context checks
// and progress reports.
const progressInterval = 1 << 12

type Options struct {
	Codec    record.Codec
	Strategy Strategy
	// Progress, if not nil, is called periodically with the number of
	// records written so far.
	Progress func(int64)
	// Merged, if not nil, counts records written.
	Merged prometheus.Counter
}

type merger struct {
	opts    Options
	slots   []Source
	bw      *bufio.Writer
	line    []byte
	n       int64
	counted int64
}

// Merge writes the records of sources to w in key order and returns the
// number of records written.  Records with equal keys are written in the
// order of their sources in the slice.  Every source is closed before Merge
// returns, and an error from any source aborts the merge.
func Merge(ctx context.Context, sources []Source, w io.Writer, opts Options) (int64, error) {
	if opts.Codec.Terminator == nil {
		opts.Codec = record.CRLF
	}
	m := &merger{
		opts:  opts,
		slots: append([]Source(nil), sources...),
		bw:    bufio.NewWriterSize(w, 1<<16),
	}
	var err error
	switch opts.Strategy {
	case Linear:
		err = m.mergeLinear(ctx)
	case Heap:
		err = m.mergeHeap(ctx)
	default:
		err = sorterr.E(sorterr.Invalid, "unknown merge strategy %d", opts.Strategy)
	}
	if err == nil {
		if flushErr := m.bw.Flush(); flushErr != nil {
			err = sorterr.E(sorterr.IO, flushErr)
		}
	}
	err = multierr.Append(err, m.closeAll())
	m.report()
	return m.n, err
}

func (m *merger) mergeLinear(ctx context.Context) error {
	for {
		min := -1
		var rec record.Record
		for i, s := range m.slots {
			if s == nil {
				continue
			}
			r, ok, err := s.Peek(ctx)
			if err != nil {
				return err
			}
			if !ok {
				if err := m.retire(i); err != nil {
					return err
				}
				continue
			}
			if min < 0 || r.Key < rec.Key {
				min, rec = i, r
			}
		}
		if min < 0 {
			return nil
		}
		if _, _, err := m.slots[min].Dequeue(ctx); err != nil {
			return err
		}
		if err := m.write(ctx, rec); err != nil {
			return err
		}
	}
}

func (m *merger) mergeHeap(ctx context.Context) error {
	h := &slotHeap{}
	for i, s := range m.slots {
		rec, ok, err := s.Peek(ctx)
		if err != nil {
			return err
		}
		if !ok {
			if err := m.retire(i); err != nil {
				return err
			}
			continue
		}
		h.items = append(h.items, head{rec: rec, slot: i})
	}
	heap.Init(h)
	for h.Len() > 0 {
		top := &h.items[0]
		s := m.slots[top.slot]
		if _, _, err := s.Dequeue(ctx); err != nil {
			return err
		}
		if err := m.write(ctx, top.rec); err != nil {
			return err
		}
		rec, ok, err := s.Peek(ctx)
		if err != nil {
			return err
		}
		if ok {
			top.rec = rec
			heap.Fix(h, 0)
			continue
		}
		if err := m.retire(top.slot); err != nil {
			return err
		}
		heap.Pop(h)
	}
	return nil
}

func (m *merger) write(ctx context.Context, rec record.Record) error {
	m.line = m.opts.Codec.AppendRecord(m.line[:0], rec)
	if _, err := m.bw.Write(m.line); err != nil {
		return sorterr.E(sorterr.IO, err)
	}
	m.n++
	if m.n%progressInterval == 0 {
		m.report()
		return ctx.Err()
	}
	return nil
}

func (m *merger) report() {
	if m.opts.Merged != nil && m.n > m.counted {
		m.opts.Merged.Add(float64(m.n - m.counted))
		m.counted = m.n
	}
	if m.opts.Progress != nil {
		m.opts.Progress(m.n)
	}
}

// retire closes an exhausted source and clears its slot.
func (m *merger) retire(slot int) error {
	s := m.slots[slot]
	m.slots[slot] = nil
	return s.Close()
}

func (m *merger) closeAll() error {
	var err error
	for i, s := range m.slots {
		if s != nil {
			err = multierr.Append(err, s.Close())
			m.slots[i] = nil
		}
	}
	return err
}

type head struct {
	rec  record.Record
	slot int
}

type slotHeap struct {
	items []head
}

func (h *slotHeap) Len() int { return len(h.items) }

func (h *slotHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.rec.Key != b.rec.Key {
		return a.rec.Key < b.rec.Key
	}
	return a.slot < b.slot
}

func (h *slotHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *slotHeap) Push(x interface{}) {
	h.items = append(h.items, x.(head))
}

func (h *slotHeap) Pop() interface{} {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}
