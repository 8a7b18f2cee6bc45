// Package ring implements a fixed-capacity circular queue that refills
// itself through a callback.  One producer, the refill, writes to the queue
// while one consumer reads from it.
package ring

import (
	"context"
	"sync"

	"github.com/brimdata/extsort/pkg/workers"
)

// RefillFunc adds items to q with TryEnqueue and reports whether it produced
// any.  Returning false tells the queue that its source is drained.
type RefillFunc[T any] func(ctx context.Context, q *Queue[T]) (bool, error)

// Queue is a bounded ring buffer.  When occupancy falls to half of capacity
// the queue schedules a refill on its worker pool, and a consumer that finds
// it empty waits for that refill to finish.  Head, tail and count change
// together under mu.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int
	tail    int
	count   int
	refill  RefillFunc[T]
	pool    *workers.Pool
	ctx     context.Context
	cancel  context.CancelFunc
	pending *workers.Future
	drained bool
	closed  bool
	err     error
}

// New returns a Queue holding up to capacity items and schedules its first
// refill immediately.
func New[T any](ctx context.Context, capacity int, pool *workers.Pool, refill RefillFunc[T]) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	q := &Queue[T]{
		items:  make([]T, capacity),
		refill: refill,
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
	}
	q.mu.Lock()
	q.schedule()
	q.mu.Unlock()
	return q
}

func (q *Queue[T]) Cap() int {
	return len(q.items)
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// TryEnqueue appends item and returns true, or returns false without
// touching the queue if it is full.
func (q *Queue[T]) TryEnqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.items) {
		return false
	}
	q.items[q.tail] = item
	q.tail = (q.tail + 1) % len(q.items)
	q.count++
	return true
}

// TryDequeue removes and returns the head item.  It returns false with a nil
// error once the refill has reported that its source is drained and the
// queue is empty.
func (q *Queue[T]) TryDequeue(ctx context.Context) (T, bool, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if ok, err := q.ready(ctx); !ok || err != nil {
		return zero, false, err
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	q.schedule()
	return item, true, nil
}

// TryPeek is like TryDequeue but leaves the head item in place.
func (q *Queue[T]) TryPeek(ctx context.Context) (T, bool, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if ok, err := q.ready(ctx); !ok || err != nil {
		return zero, false, err
	}
	return q.items[q.head], true, nil
}

// Close cancels and waits for any refill in flight.  Afterward the queue
// reports exhaustion once its buffered items are consumed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	f := q.pending
	q.mu.Unlock()
	q.cancel()
	if f != nil {
		<-f.Done()
	}
}

// ready waits until the queue is nonempty.  It must be called with mu held
// and returns with mu held.
func (q *Queue[T]) ready(ctx context.Context) (bool, error) {
	for {
		q.harvest()
		if q.err != nil {
			return false, q.err
		}
		q.schedule()
		if q.count > 0 {
			return true, nil
		}
		f := q.pending
		if f == nil {
			return false, nil
		}
		q.mu.Unlock()
		_, err := f.Wait(ctx)
		q.mu.Lock()
		if err != nil && ctx.Err() != nil {
			return false, ctx.Err()
		}
	}
}

// harvest records the outcome of a finished refill.
func (q *Queue[T]) harvest() {
	if q.pending == nil || !q.pending.Ready() {
		return
	}
	more, err := q.pending.Result()
	q.pending = nil
	if err != nil && q.err == nil && !q.closed {
		q.err = err
	}
	if !more {
		q.drained = true
	}
}

// schedule starts a refill if occupancy is at or below the low-water mark
// and none is running.
func (q *Queue[T]) schedule() {
	if q.pending != nil || q.drained || q.closed || q.err != nil {
		return
	}
	if q.count > len(q.items)/2 {
		return
	}
	q.pending = q.pool.Submit(q.ctx, func(ctx context.Context) (bool, error) {
		return q.refill(ctx, q)
	})
}
