// Package workers runs short tasks on a bounded set of goroutines and hands
// back a Future for each submission.
package workers

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

type Pool struct {
	sem *semaphore.Weighted
}

// New returns a Pool that runs at most n tasks at once.  If n is less than
// one, GOMAXPROCS is used.
func New(n int) *Pool {
	if n < 1 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n))}
}

// Task reports whether more work remains after it ran.
type Task func(context.Context) (bool, error)

// Future is the pending result of one Task.
type Future struct {
	done chan struct{}
	more bool
	err  error
}

// Submit schedules task and returns its Future.  If ctx is canceled before a
// worker frees up, the Future completes with ctx's error without running
// task.
func (p *Pool) Submit(ctx context.Context, task Task) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.err = err
			return
		}
		defer p.sem.Release(1)
		f.more, f.err = task(ctx)
	}()
	return f
}

// Done returns a channel that is closed when the task has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the task has finished without blocking.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) (bool, error) {
	select {
	case <-f.done:
		return f.more, f.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Result returns the outcome of a finished task.  It must only be called
// after Done is closed.
func (f *Future) Result() (bool, error) {
	return f.more, f.err
}
