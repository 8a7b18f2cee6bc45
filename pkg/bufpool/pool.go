// Package bufpool provides byte buffers grouped in power-of-two size classes
// so the run builder and the run readers can share read buffers without
// allocating a fresh one for every window.
package bufpool

import (
	"math"
	"math/bits"
	"sync"
)

type sizedPool struct {
	size int
	pool sync.Pool
}

func newSizedPool(size int) *sizedPool {
	return &sizedPool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Pool is a set of size-class pools.  Requests larger than the largest
// class are allocated directly and dropped on Put.
type Pool struct {
	minSize int
	maxSize int
	pools   []*sizedPool
}

// New returns a Pool whose classes run from minSize up to maxSize, doubling
// each step.  Both are rounded up to a power of two.
func New(minSize, maxSize int) *Pool {
	minSize = roundUp(minSize)
	maxSize = roundUp(maxSize)
	if maxSize < minSize {
		maxSize = minSize
	}
	p := &Pool{minSize: minSize, maxSize: maxSize}
	for size := minSize; size <= maxSize && size > 0; size *= 2 {
		p.pools = append(p.pools, newSizedPool(size))
	}
	return p
}

func roundUp(n int) int {
	if n <= 1 {
		return 1
	}
	if n > math.MaxInt/2 {
		return n
	}
	return 1 << bits.Len(uint(n-1))
}

func (p *Pool) findPool(size int) *sizedPool {
	if size > p.maxSize {
		return nil
	}
	idx := 0
	if size > p.minSize {
		idx = bits.Len(uint(size-1)) - bits.Len(uint(p.minSize-1))
	}
	return p.pools[idx]
}

// Get returns a buffer of length size.  Its contents are unspecified.
func (p *Pool) Get(size int) *[]byte {
	sp := p.findPool(size)
	if sp == nil {
		b := make([]byte, size)
		return &b
	}
	buf := sp.pool.Get().(*[]byte)
	*buf = (*buf)[:size]
	return buf
}

// Put returns buf to the pool.  The caller must not touch buf afterward.
func (p *Pool) Put(buf *[]byte) {
	sp := p.findPool(cap(*buf))
	if sp == nil || sp.size != cap(*buf) {
		return
	}
	*buf = (*buf)[:sp.size]
	sp.pool.Put(buf)
}

// With leases a buffer of length size for the duration of fn.  The buffer
// is returned to the pool when fn returns and must not be retained.
func (p *Pool) With(size int, fn func([]byte) error) error {
	buf := p.Get(size)
	defer p.Put(buf)
	return fn(*buf)
}
